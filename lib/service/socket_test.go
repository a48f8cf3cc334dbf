// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/antenny/fleet/lib/codec"
	"github.com/antenny/fleet/lib/testutil"
)

type echoRequest struct {
	Device  uint32  `cbor:"device"`
	Azimuth float64 `cbor:"azimuth"`
}

type echoResult struct {
	Device  uint32  `json:"device"`
	Azimuth float64 `json:"azimuth"`
}

// startServer serves handlers on a fresh socket until the test ends.
func startServer(t *testing.T, handlers map[string]ActionFunc) (*SocketServer, string) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewSocketServer(socketPath, slog.New(slog.DiscardHandler))
	for action, handler := range handlers {
		server.Handle(action, handler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve exit"); err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	})

	testutil.Eventually(t, 5*time.Second, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, "socket file created")
	return server, socketPath
}

func TestCallDecodesResult(t *testing.T) {
	_, socketPath := startServer(t, map[string]ActionFunc{
		"echo": func(ctx context.Context, raw []byte) (any, error) {
			var request echoRequest
			if err := DecodeRequest(raw, &request); err != nil {
				return nil, err
			}
			return echoResult{Device: request.Device, Azimuth: request.Azimuth}, nil
		},
	})

	var result echoResult
	err := NewClient(socketPath).Call(context.Background(), "echo", map[string]any{"device": 7, "azimuth": 90.5}, &result)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if result != (echoResult{Device: 7, Azimuth: 90.5}) {
		t.Errorf("result = %+v, want device 7 azimuth 90.5", result)
	}
}

func TestCallNilResult(t *testing.T) {
	called := make(chan struct{}, 1)
	_, socketPath := startServer(t, map[string]ActionFunc{
		"ping": func(context.Context, []byte) (any, error) {
			called <- struct{}{}
			return nil, nil
		},
	})

	if err := NewClient(socketPath).Call(context.Background(), "ping", nil, nil); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	testutil.RequireReceive(t, called, time.Second, "handler invoked")
}

func TestCallReturnsRemoteError(t *testing.T) {
	_, socketPath := startServer(t, map[string]ActionFunc{
		"move": func(context.Context, []byte) (any, error) {
			return nil, errors.New("device unreachable: 0x99")
		},
	})

	err := NewClient(socketPath).Call(context.Background(), "move", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Call() error = %v (%T), want *RemoteError", err, err)
	}
	if remote.Action != "move" || remote.Message != "device unreachable: 0x99" {
		t.Errorf("RemoteError = %+v", remote)
	}
	if got := err.Error(); got != "move: device unreachable: 0x99" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnknownAction(t *testing.T) {
	_, socketPath := startServer(t, nil)

	err := NewClient(socketPath).Call(context.Background(), "launch", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != `unknown action "launch"` {
		t.Errorf("Call() error = %v, want unknown action", err)
	}
}

func TestActionsListsHandlers(t *testing.T) {
	noop := func(context.Context, []byte) (any, error) { return nil, nil }
	server, socketPath := startServer(t, map[string]ActionFunc{"status": noop, "fleet": noop})

	var actions []string
	if err := NewClient(socketPath).Call(context.Background(), ActionsAction, nil, &actions); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	want := []string{"actions", "fleet", "status"}
	if !slices.Equal(actions, want) {
		t.Errorf("actions = %v, want %v", actions, want)
	}
	if !slices.Equal(server.Actions(), want) {
		t.Errorf("Actions() = %v, want %v", server.Actions(), want)
	}
}

func TestMissingActionField(t *testing.T) {
	_, socketPath := startServer(t, nil)

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(map[string]any{"device": 1}); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if response.OK || response.Error != "missing required field: action" {
		t.Errorf("response = %+v, want missing action error", response)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer(filepath.Join(t.TempDir(), "unused.sock"), slog.New(slog.DiscardHandler))
	server.Handle("move", func(context.Context, []byte) (any, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Error("Handle() with a duplicate action did not panic")
		}
	}()
	server.Handle("move", func(context.Context, []byte) (any, error) { return nil, nil })
}

func TestCallHonorsContext(t *testing.T) {
	release := make(chan struct{})
	_, socketPath := startServer(t, map[string]ActionFunc{
		"wait": func(ctx context.Context, _ []byte) (any, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, nil
		},
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewClient(socketPath).Call(ctx, "wait", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestCallToMissingSocket(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	if err := client.Call(context.Background(), "status", nil, nil); err == nil {
		t.Error("Call() to a missing socket succeeded")
	}
}

func TestServeRemovesSocketOnExit(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatalf("creating stale file: %v", err)
	}
	server := NewSocketServer(socketPath, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	testutil.Eventually(t, 5*time.Second, func() bool {
		info, err := os.Stat(socketPath)
		return err == nil && info.Mode()&os.ModeSocket != 0
	}, "stale file replaced by socket")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve exit"); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Serve returned: %v", err)
	}
}
