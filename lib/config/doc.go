// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the fleet
// daemons.
//
// Configuration is loaded from a single file named by either the
// ANTENNY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path. Fields the file omits keep
// the values from [Default], so a file only states what differs.
//
// The file may carry development and production sections that override
// network, log, and metrics settings when [Config].Environment matches.
// A production file without a production section switches the network
// to multicast.
//
// Socket paths support ${VAR} and ${VAR:-default} expansion, so the
// defaults follow XDG_RUNTIME_DIR when it is set. No other environment
// variables override config values.
//
// This package depends on no other fleet packages; the daemons convert
// its sections into transport, leader, and follower configs.
package config
