// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package control defines the actions and payloads exchanged on the
// daemons' control sockets.
//
// The leader daemon answers fleet, move, status, wait, heartbeat, and
// probe. The follower daemon answers status, leaders, and follow. Both
// answer version and the server's built-in actions listing.
//
// Payload types carry json tags only: the CBOR codec falls back to
// them on the socket, and antennyctl --json prints the same names.
// Device ids travel as integers and are formatted as hex for people.
package control
