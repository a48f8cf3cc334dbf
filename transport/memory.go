// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/wire"
)

// Delivery describes one datagram on its way to one endpoint, for
// MemoryNetwork drop filters.
type Delivery struct {
	From string
	To   string
	Data []byte
}

// MemoryNetwork is an in-process broadcast segment. Every datagram sent
// by any endpoint is delivered to every open endpoint, the sender
// included.
type MemoryNetwork struct {
	clock clock.Clock

	mu        sync.Mutex
	endpoints map[string]*MemoryEndpoint
	delay     time.Duration
	drop      func(Delivery) bool
}

// NewMemoryNetwork creates an empty network. Arrival times are read
// from clk.
func NewMemoryNetwork(clk clock.Clock) *MemoryNetwork {
	return &MemoryNetwork{
		clock:     clk,
		endpoints: make(map[string]*MemoryEndpoint),
	}
}

// SetDelay delays every subsequent delivery by d of wall-clock time.
func (n *MemoryNetwork) SetDelay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
}

// SetDropFilter installs a filter that discards deliveries for which it
// returns true. A nil filter delivers everything.
func (n *MemoryNetwork) SetDropFilter(filter func(Delivery) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = filter
}

// Endpoint attaches a new endpoint named name. Panics if the name is
// already attached.
func (n *MemoryNetwork) Endpoint(name string) *MemoryEndpoint {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.endpoints[name]; exists {
		panic(fmt.Sprintf("transport: memory endpoint %q already attached", name))
	}
	endpoint := &MemoryEndpoint{
		network: n,
		name:    name,
		inbound: make(chan Datagram, DefaultQueueSize),
		closed:  make(chan struct{}),
	}
	n.endpoints[name] = endpoint
	return endpoint
}

func (n *MemoryNetwork) broadcast(from string, data []byte) {
	n.mu.Lock()
	delay, drop := n.delay, n.drop
	targets := make([]*MemoryEndpoint, 0, len(n.endpoints))
	for _, endpoint := range n.endpoints {
		targets = append(targets, endpoint)
	}
	n.mu.Unlock()

	for _, target := range targets {
		if drop != nil && drop(Delivery{From: from, To: target.name, Data: data}) {
			continue
		}
		datagram := Datagram{Data: bytes.Clone(data), Source: memoryAddr(from)}
		if delay > 0 {
			time.AfterFunc(delay, func() { target.deliver(datagram, n.clock) })
			continue
		}
		target.deliver(datagram, n.clock)
	}
}

func (n *MemoryNetwork) detach(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, name)
}

// MemoryEndpoint is one node's attachment to a MemoryNetwork.
type MemoryEndpoint struct {
	network *MemoryNetwork
	name    string
	inbound chan Datagram

	closed    chan struct{}
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

var _ Conn = (*MemoryEndpoint)(nil)

// Send delivers a copy of data to every endpoint on the network.
func (e *MemoryEndpoint) Send(data []byte) error {
	select {
	case <-e.closed:
		return ErrStopped
	default:
	}
	if len(data) > wire.MaxDatagramSize {
		return fmt.Errorf("%w: %d bytes", wire.ErrFrameTooLarge, len(data))
	}
	e.sent.Add(1)
	e.network.broadcast(e.name, data)
	return nil
}

// Receive implements Conn.
func (e *MemoryEndpoint) Receive(timeout time.Duration) (Datagram, bool) {
	return receiveFrom(e.inbound, e.closed, timeout)
}

// Done implements Conn.
func (e *MemoryEndpoint) Done() <-chan struct{} { return e.closed }

// Close detaches the endpoint. Later sends fail with ErrStopped.
func (e *MemoryEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.network.detach(e.name)
	})
	return nil
}

// Name returns the endpoint's address on the network.
func (e *MemoryEndpoint) Name() string { return e.name }

// Sent counts datagrams this endpoint has sent.
func (e *MemoryEndpoint) Sent() uint64 { return e.sent.Load() }

// Dropped counts datagrams discarded because the inbound queue was full.
func (e *MemoryEndpoint) Dropped() uint64 { return e.dropped.Load() }

func (e *MemoryEndpoint) deliver(datagram Datagram, clk clock.Clock) {
	select {
	case <-e.closed:
		return
	default:
	}
	datagram.ReceivedAt = clk.Now()
	select {
	case e.inbound <- datagram:
	default:
		e.dropped.Add(1)
	}
}

// memoryAddr is a MemoryEndpoint's net.Addr.
type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }
