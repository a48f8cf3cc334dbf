// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"net"
	"time"
)

var (
	// ErrStopped is returned by Send after Stop or Close.
	ErrStopped = errors.New("transport stopped")

	// ErrQueueFull is returned by Send when the outbound queue has no
	// room.
	ErrQueueFull = errors.New("outbound queue full")
)

// Datagram is one received datagram.
type Datagram struct {
	Data       []byte
	Source     net.Addr
	ReceivedAt time.Time
}

// Conn is a datagram channel onto the fleet medium.
type Conn interface {
	// Send enqueues data for transmission. It does not block on the
	// network. The caller may reuse data after Send returns.
	Send(data []byte) error

	// Receive returns the next inbound datagram, waiting at most
	// timeout. Reports false on timeout or once the connection is
	// stopped and drained.
	Receive(timeout time.Duration) (Datagram, bool)

	// Done is closed once the connection is stopped. Consumers polling
	// Receive select on it to exit instead of spinning.
	Done() <-chan struct{}
}

// receiveFrom implements Receive over an inbound queue and a done
// signal.
func receiveFrom(inbound <-chan Datagram, done <-chan struct{}, timeout time.Duration) (Datagram, bool) {
	select {
	case datagram := <-inbound:
		return datagram, true
	default:
	}
	if timeout <= 0 {
		return Datagram{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case datagram := <-inbound:
		return datagram, true
	case <-timer.C:
		return Datagram{}, false
	case <-done:
		return Datagram{}, false
	}
}
