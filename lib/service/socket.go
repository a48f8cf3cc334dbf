// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/antenny/fleet/lib/codec"
)

// ActionFunc handles one control request. raw is the complete CBOR
// request, including the "action" field; handlers decode their own
// fields from it with DecodeRequest.
//
// A nil result yields {ok: true}. A non-nil result is encoded into the
// response's data field. An error yields {ok: false, error: ...}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every control socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// ActionsAction is answered by every server with the sorted list of
// registered actions.
const ActionsAction = "actions"

// socketMode is applied to the socket file after listening.
const socketMode = 0o660

const (
	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 64 * 1024
)

// SocketServer serves the control protocol on a Unix socket. Each
// connection carries exactly one request and one response.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[string]ActionFunc

	active sync.WaitGroup
}

// NewSocketServer creates a server for socketPath. Register actions
// with Handle before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	server := &SocketServer{
		socketPath: socketPath,
		logger:     logger.With("socket", socketPath),
		handlers:   make(map[string]ActionFunc),
	}
	server.handlers[ActionsAction] = func(context.Context, []byte) (any, error) {
		return server.Actions(), nil
	}
	return server
}

// Handle registers handler for action. Panics on a duplicate action.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Actions returns the registered action names in sorted order.
func (s *SocketServer) Actions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actions := make([]string, 0, len(s.handlers))
	for action := range s.handlers {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests. A stale socket file at the path is replaced; the
// socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
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
	if err := os.Chmod(s.socketPath, socketMode); err != nil {
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("control socket listening")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}
	s.active.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.write(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.write(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if header.Action == "" {
		s.write(conn, Response{Error: "missing required field: action"})
		return
	}

	s.mu.RLock()
	handler, exists := s.handlers[header.Action]
	s.mu.RUnlock()
	if !exists {
		s.write(conn, Response{Error: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	start := time.Now()
	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Info("action failed", "action", header.Action, "duration", time.Since(start), "error", err)
		s.write(conn, Response{Error: err.Error()})
		return
	}
	s.logger.Debug("action complete", "action", header.Action, "duration", time.Since(start))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.write(conn, Response{Error: fmt.Sprintf("internal: encoding response: %v", err)})
			return
		}
		response.Data = data
	}
	s.write(conn, response)
}

func (s *SocketServer) write(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}

// DecodeRequest decodes the action-specific fields of raw into request.
func DecodeRequest(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("invalid request fields: %w", err)
	}
	return nil
}
