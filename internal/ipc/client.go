package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call(serviceName+".Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobsList returns recent jobs, optionally scoped to a case or evidence item.
func (c *Client) JobsList(req JobsListRequest) (*JobsListResponse, error) {
	var resp JobsListResponse
	if err := c.client.Call(serviceName+".JobsList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobGet returns details for a single job.
func (c *Client) JobGet(id string) (*JobGetResponse, error) {
	var resp JobGetResponse
	if err := c.client.Call(serviceName+".JobGet", JobGetRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue submits a new job to the daemon.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.client.Call(serviceName+".Enqueue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(id string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.client.Call(serviceName+".Cancel", CancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
