// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"closed", net.ErrClosed, true},
		{"wrapped closed", fmt.Errorf("reading datagram: %w", net.ErrClosed), true},
		{"broken pipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, true},
		{"reset", syscall.ECONNRESET, true},
		{"refused", &net.OpError{Op: "read", Err: os.NewSyscallError("recvfrom", syscall.ECONNREFUSED)}, true},
		{"permission", syscall.EACCES, false},
		{"other", errors.New("boom"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(&net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}) {
		t.Error("IsTimeout(deadline exceeded) = false")
	}
	if IsTimeout(net.ErrClosed) {
		t.Error("IsTimeout(net.ErrClosed) = true")
	}
	if IsTimeout(nil) {
		t.Error("IsTimeout(nil) = true")
	}
}
