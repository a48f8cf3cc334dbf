// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package leader coordinates a fleet of followers.
//
// A [Coordinator] owns one transport connection. A dispatch goroutine
// decodes every inbound datagram, discards anything from another
// channel or from the leader itself, and files responses into a
// [Router], one bounded queue per command type. Commands then wait on
// the router for the one response they match, leaving everything else
// queued for other waiters.
//
// Heartbeat rounds feed a liveness tracker with round-trip samples.
// Move uses the mean RTT to the target to shift the execution instant
// earlier by half a round trip, so that a fleet commanded to move at
// the same leader-clock instant moves together.
package leader
