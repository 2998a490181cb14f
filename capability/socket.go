// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/switchboard/lib/codec"
)

// Socket actions.
const (
	ActionDescribe = "describe"
	ActionValue    = "value"
	ActionInvoke   = "invoke"
	ActionSend     = "send"
	ActionSync     = "sync"
)

// Response is the envelope for every socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// request is the envelope for every socket request. Identity is never
// part of it: the table the server was built with carries it.
type request struct {
	Action     string             `cbor:"action"`
	Capability string             `cbor:"capability,omitempty"`
	Args       []codec.RawMessage `cbor:"args,omitempty"`
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 1024 * 1024
)

// SocketServer serves one table on a Unix socket. Each connection
// carries exactly one CBOR request and one CBOR response. Subscription
// capabilities are not reachable over the socket.
type SocketServer struct {
	socketPath string
	table      *Table
	logger     *slog.Logger

	activeConnections sync.WaitGroup
}

// NewSocketServer returns a server for table on socketPath. A nil
// logger uses slog.Default().
func NewSocketServer(socketPath string, table *Table, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketServer{socketPath: socketPath, table: table, logger: logger}
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests. A stale socket file is removed first; the socket
// file is removed on return. ready, when non-nil, is closed once the
// socket is listening.
func (s *SocketServer) Serve(ctx context.Context, ready chan<- struct{}) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting socket %s: %w", s.socketPath, err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("capability socket listening", "path", s.socketPath, "capabilities", len(s.table.Names()))
	if ready != nil {
		close(ready)
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var incoming request
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&incoming); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if incoming.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	result, err := s.dispatch(ctx, incoming)
	if err != nil {
		s.logger.Debug("capability call failed",
			"action", incoming.Action,
			"capability", incoming.Capability,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

func (s *SocketServer) dispatch(ctx context.Context, incoming request) (any, error) {
	args := make([]any, len(incoming.Args))
	for index, raw := range incoming.Args {
		args[index] = raw
	}

	switch incoming.Action {
	case ActionDescribe:
		return s.table.Descriptors(), nil
	case ActionValue:
		return rawResult(s.table.Value(incoming.Capability))
	case ActionInvoke:
		return rawResult(s.table.Invoke(ctx, incoming.Capability, args...))
	case ActionSend:
		return nil, s.table.Send(incoming.Capability, args...)
	case ActionSync:
		return rawResult(s.table.SendSync(incoming.Capability, args...))
	default:
		return nil, fmt.Errorf("unknown action %q", incoming.Action)
	}
}

// rawResult passes an already-encoded reply through without encoding
// it a second time.
func rawResult(raw codec.RawMessage, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	response := Response{OK: true}
	if raw, ok := result.(codec.RawMessage); ok {
		response.Data = raw
	} else if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
