// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and request/response DTOs. The server
// wraps the api service while the client dials with a short timeout so CLI
// commands fail fast when the daemon is offline.
package ipc
