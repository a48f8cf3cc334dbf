// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N increases
// monotonically across the test binary.
//
//	socket := filepath.Join(dir, testutil.UniqueID("leader")+".sock")
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
