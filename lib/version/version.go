// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"

	"github.com/antenny/fleet/lib/wire"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// ProtocolVersion is the wire envelope version this build speaks.
const ProtocolVersion = int(wire.Version)

// Build is the machine-readable form of the version information.
type Build struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	Dirty           bool   `json:"dirty"`
	BuildTime       string `json:"build_time"`
	ProtocolVersion int    `json:"protocol_version"`
	Go              string `json:"go"`
	Platform        string `json:"platform"`
}

// Current returns the running binary's build information.
func Current() Build {
	return Build{
		Version:         Version,
		Commit:          GitCommit,
		Dirty:           GitDirty == "true",
		BuildTime:       BuildTime,
		ProtocolVersion: ProtocolVersion,
		Go:              runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s, protocol v%d)", Version, GitCommit, dirty, BuildTime, ProtocolVersion)
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}
