// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the local control socket of the fleet
// daemons.
//
// The leader and follower daemons each listen on a Unix socket.
// antennyctl connects, writes one CBOR request map carrying an "action"
// field plus action-specific fields, reads one CBOR [Response], and
// disconnects. There is no framing beyond CBOR's self-delimiting
// encoding and no session state.
//
// Access control is the socket file's permissions: the daemon creates
// it mode 0660 and anyone who can open it can command the fleet.
package service
