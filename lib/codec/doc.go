// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the control
// socket server and its clients.
//
// The fleet uses three encodings with a clear boundary:
//
//   - The fixed binary frame of package wire, on the radio medium.
//   - CBOR on the local control socket between antennyctl and the
//     daemons.
//   - JSON for antennyctl --json output.
//
// Control protocol types carry `json` struct tags. fxamacker/cbor falls
// back to `json` tags when `cbor` tags are absent, so one tag controls
// field naming for both the socket and the CLI output. Types only ever
// seen on the socket use `cbor` tags. Never put both on one field.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
