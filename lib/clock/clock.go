// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source used by fleet components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks are dropped when the reader falls behind, as with time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Until returns the duration from c.Now() until deadline. Negative
// when the deadline has passed.
func Until(c Clock, deadline time.Time) time.Duration {
	return deadline.Sub(c.Now())
}
