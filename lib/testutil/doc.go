// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for fleet packages.
//
// [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout safety valve so individual tests do not call
// time.After directly. [Eventually] polls a condition until it holds.
// Together these are the only places tests wait on the wall clock;
// scheduling logic under test runs on a clock.FakeClock.
//
// [SocketDir] creates a short temporary directory for control
// sockets, since Unix socket paths are limited to 108 bytes.
//
// [UniqueID] generates monotonically increasing identifiers.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
