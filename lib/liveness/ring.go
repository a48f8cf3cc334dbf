// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import "time"

// sampleRing holds the most recent samples in a fixed-size circular
// buffer. Once full, each add overwrites the oldest entry.
type sampleRing struct {
	values []time.Duration
	next   int
	count  int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{values: make([]time.Duration, capacity)}
}

func (r *sampleRing) add(value time.Duration) {
	r.values[r.next] = value
	r.next = (r.next + 1) % len(r.values)
	if r.count < len(r.values) {
		r.count++
	}
}

func (r *sampleRing) len() int { return r.count }

// mean returns zero for an empty ring.
func (r *sampleRing) mean() time.Duration {
	if r.count == 0 {
		return 0
	}
	var sum time.Duration
	for _, value := range r.retained() {
		sum += value
	}
	return sum / time.Duration(r.count)
}

// retained returns the live region of values, in storage order.
func (r *sampleRing) retained() []time.Duration {
	if r.count < len(r.values) {
		return r.values[:r.count]
	}
	return r.values
}

// snapshot returns a copy of the samples, oldest first.
func (r *sampleRing) snapshot() []time.Duration {
	out := make([]time.Duration, 0, r.count)
	if r.count < len(r.values) {
		return append(out, r.values[:r.count]...)
	}
	out = append(out, r.values[r.next:]...)
	return append(out, r.values[:r.next]...)
}
