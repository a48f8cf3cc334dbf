// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies socket errors for the fleet's network
// loops.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is the normal result of the
// local side closing a socket or the peer going away: EOF, a closed
// connection, broken pipe, or connection reset. Receive and send pumps
// see these during Stop and must not log them as failures.
//
// ECONNREFUSED is included because a unicast UDP send to a port with
// no listener surfaces the ICMP port-unreachable on the next socket
// operation, which is routine while followers restart.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET || errno == syscall.ECONNREFUSED
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry. The receive pump
// polls with short read deadlines, so timeouts are its idle path.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
