// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock reading start. Time only moves when Advance
// is called.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a manually driven Clock for tests. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingTimer
	changed *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	channel  chan time.Time

	// period is non-zero for tickers, which are re-armed after firing.
	period  time.Duration
	stopped bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot waiter. A non-positive d fires at once
// without registering anything.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.pending = append(c.pending, &pendingTimer{deadline: c.now.Add(d), channel: channel})
	c.changed.Broadcast()
	return channel
}

// NewTicker registers a periodic waiter.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &pendingTimer{
		deadline: c.now.Add(d),
		channel:  make(chan time.Time, 1),
		period:   d,
	}
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()

	return &Ticker{
		C: timer.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.stopped = true
		},
	}
}

// Sleep blocks until the clock has been advanced past now+d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline is at or before the new time, earliest first. Sends never
// block: a ticker whose buffered tick has not been read loses the new
// one.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			select {
			case timer.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes due one-shot waiters, re-arms due tickers, and
// returns everything that must fire, sorted by deadline.
func (c *FakeClock) takeDue(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*pendingTimer
	for _, timer := range c.pending {
		switch {
		case timer.stopped:
		case timer.deadline.After(target):
			keep = append(keep, timer)
		default:
			due = append(due, timer)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	for _, timer := range due {
		if timer.period > 0 {
			timer.deadline = timer.deadline.Add(timer.period)
			keep = append(keep, timer)
		}
	}
	c.pending = keep
	return due
}

// WaitForTimers blocks until at least n waiters are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}
