// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package leader

import (
	"net"
	"sync"
	"time"

	"github.com/antenny/fleet/lib/wire"
)

// Envelope is a decoded response waiting in the router.
type Envelope struct {
	Packet     wire.Packet
	Source     net.Addr
	ReceivedAt time.Time
}

// Router demultiplexes inbound responses into one bounded FIFO per
// command type. Waiters take only the entries they match; everything
// else stays queued for other waits. When a queue is full the oldest
// entry is evicted.
type Router struct {
	capacity int

	mu      sync.Mutex
	queues  map[wire.CommandType][]Envelope
	changed chan struct{}
	evicted uint64
}

// NewRouter creates a Router holding at most capacity entries per
// command type.
func NewRouter(capacity int) *Router {
	if capacity < 1 {
		capacity = 1
	}
	return &Router{
		capacity: capacity,
		queues:   make(map[wire.CommandType][]Envelope),
		changed:  make(chan struct{}),
	}
}

// Push appends envelope to its command type's queue and wakes waiters.
func (r *Router) Push(envelope Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commandType := envelope.Packet.Payload.Type()
	queue := r.queues[commandType]
	if len(queue) >= r.capacity {
		queue = queue[1:]
		r.evicted++
	}
	r.queues[commandType] = append(queue, envelope)

	close(r.changed)
	r.changed = make(chan struct{})
}

// Changed returns a channel closed by the next Push. Take the channel
// before checking the queues so a Push between the check and the wait
// is not missed.
func (r *Router) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Take removes and returns the oldest entry of commandType for which
// match returns true. A nil match accepts anything.
func (r *Router) Take(commandType wire.CommandType, match func(Envelope) bool) (Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.queues[commandType]
	for index, envelope := range queue {
		if match == nil || match(envelope) {
			r.queues[commandType] = append(queue[:index:index], queue[index+1:]...)
			return envelope, true
		}
	}
	return Envelope{}, false
}

// TakeAll removes and returns every matching entry of commandType,
// oldest first.
func (r *Router) TakeAll(commandType wire.CommandType, match func(Envelope) bool) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	var taken, kept []Envelope
	for _, envelope := range r.queues[commandType] {
		if match == nil || match(envelope) {
			taken = append(taken, envelope)
		} else {
			kept = append(kept, envelope)
		}
	}
	r.queues[commandType] = kept
	return taken
}

// Len returns the number of queued entries of commandType.
func (r *Router) Len(commandType wire.CommandType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[commandType])
}

// Evicted counts entries dropped because their queue was full.
func (r *Router) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
