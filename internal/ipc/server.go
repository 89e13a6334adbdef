package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"casework/internal/api"
	"casework/internal/logging"
)

// serviceName is the RPC namespace clients call into.
const serviceName = "Casework"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerInfo carries daemon identity reported alongside status.
type ServerInfo struct {
	PID      int
	DBPath   string
	LockPath string
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, service *api.Service, info ServerInfo, logger *slog.Logger) (*Server, error) {
	if service == nil {
		return nil, errors.New("ipc server requires an api service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	handler := &rpcService{service: service, info: info, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, handler); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually before the next start"))
	}
}

type rpcService struct {
	service *api.Service
	info    ServerInfo
	logger  *slog.Logger
	ctx     context.Context
}

func (s *rpcService) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *rpcService) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.service.Status(s.ctx)
	if err != nil {
		return err
	}
	resp.Status = status
	resp.PID = s.info.PID
	resp.DBPath = s.info.DBPath
	resp.LockPath = s.info.LockPath
	return nil
}

func (s *rpcService) JobsList(req JobsListRequest, resp *JobsListResponse) error {
	listed, err := s.service.List(s.ctx, req.CaseID, req.EvidenceID, req.Limit)
	if err != nil {
		return err
	}
	resp.Jobs = listed
	return nil
}

func (s *rpcService) JobGet(req JobGetRequest, resp *JobGetResponse) error {
	if req.ID == "" {
		return errors.New("job get requires an id")
	}
	described, err := s.service.Describe(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = described
	return nil
}

func (s *rpcService) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	result, err := s.service.Enqueue(s.ctx, api.EnqueueRequest{
		Type:          req.Type,
		CaseID:        req.CaseID,
		EvidenceID:    req.EvidenceID,
		Payload:       req.Payload,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return err
	}
	resp.Job = result.Job
	resp.Created = result.Created
	s.log().Info("job enqueued via IPC",
		logging.String(logging.FieldEventType, "job_enqueue"),
		logging.String(logging.FieldJobID, result.Job.ID),
		logging.Bool("created", result.Created))
	return nil
}

func (s *rpcService) Cancel(req CancelRequest, resp *CancelResponse) error {
	result, err := s.service.Cancel(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = result.Job
	resp.Applied = result.Applied
	s.log().Info("job cancel via IPC",
		logging.String(logging.FieldEventType, "job_cancel"),
		logging.String(logging.FieldJobID, req.ID),
		logging.Bool("applied", result.Applied))
	return nil
}
