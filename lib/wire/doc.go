// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the fleet's datagram format: a fixed binary
// envelope carrying one of a closed set of payloads.
//
// Every datagram is laid out in network byte order as:
//
//	[2] header magic 0xA7 0x3E
//	[1] protocol version
//	[1] command type
//	[4] sender device id
//	[4] channel
//	[2] payload length n
//	[n] payload body
//	[8] keyed BLAKE3 of everything above, truncated
//	[2] trailer magic 0x3E 0xA7
//
// Datagrams travel over unacknowledged broadcast UDP, so [Decode]
// treats its input as hostile: any truncation, bit flip, or length
// disagreement yields an error wrapping [ErrMalformedFrame], and a
// well-formed frame whose command type has no decoder yields
// [ErrUnknownPayload]. Decode never panics.
//
// The package does no I/O and holds no state beyond the decoder table.
package wire
