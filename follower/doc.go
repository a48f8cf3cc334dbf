// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package follower implements the device side of the fleet.
//
// Every node on the medium sees every packet, so a [Node] filters for
// itself: packets from another channel, from its own id, or addressed
// to another device are discarded before dispatch. Heartbeats from any
// leader are recorded for discovery, but only the leader chosen with
// [Node.Follow] gets answers to heartbeats and pings.
//
// A move request carries the instant at which to move, already
// compensated by the leader for one-way latency. The node waits on its
// own clock until that instant, drives the platform, and reports
// success. A request whose instant has passed is dropped unanswered.
package follower
