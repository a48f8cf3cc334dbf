// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the fleet daemons:
// the structured logger every daemon builds first, and the fatal-error
// exit used when run() fails before or after that logger exists.
package process
