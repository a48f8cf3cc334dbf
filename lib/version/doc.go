// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the fleet binaries.
//
// The package-level variables are injected at build time:
//
//	go build -ldflags "-X github.com/antenny/fleet/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They default to "unknown" / "0.1.0-dev" in development builds and
// tests. [Info] is the --version line; [Full] adds the toolchain and
// platform; [Current] returns the same data as a struct for JSON
// output. [ProtocolVersion] is the wire format version, which must
// match across every node of a fleet.
package version
