// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the fleet.
//
// Everything that schedules work against wall-clock time (the
// leader's response waits, the liveness tracker's freshness checks,
// the follower's move scheduler) takes a [Clock] instead of calling
// the time package directly. Production code passes [Real]; tests pass
// a [FakeClock] from [Fake] and move time forward explicitly.
//
// # Driving a FakeClock
//
// A goroutine that calls After, NewTicker, or Sleep on a FakeClock
// registers a pending waiter. Tests call [FakeClock.WaitForTimers] to
// block until the expected number of waiters exist, then
// [FakeClock.Advance] to fire them in deadline order:
//
//	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
//	node := follower.New(cfg, conn, platform, gps, fake, logger)
//	// ... deliver a MoveRequest scheduled two seconds out ...
//	fake.WaitForTimers(1)
//	fake.Advance(2 * time.Second)
//
// This removes the race between a goroutine arming its timer and the
// test moving time past the deadline.
package clock
