// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/antenny/fleet/lib/codec"
)

const (
	dialTimeout     = 5 * time.Second
	maxResponseSize = 1024 * 1024

	// DefaultCallTimeout bounds the wait for a response when the
	// caller's context has no deadline. Moves can be scheduled
	// seconds ahead, so this is generous.
	DefaultCallTimeout = 2 * time.Minute
)

// RemoteError is returned by Call when the daemon answered ok=false.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client calls a daemon's control socket. Each Call uses its own
// connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// Call sends action with fields and decodes the response data into
// result. fields must not contain "action". result may be nil. A
// daemon-side failure is returned as *RemoteError; transport failures
// are plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.roundTrip(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &RemoteError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if _, ok := ctx.Deadline(); !ok {
		conn.SetDeadline(time.Now().Add(DefaultCallTimeout))
	}

	// Cancellation and the ctx deadline unblock I/O through here, so
	// ctx.Err() is set whenever the read fails because of them.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
