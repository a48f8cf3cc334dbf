// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package leader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeviceUnreachable means the device has no liveness record or
	// has not answered within the offline threshold. Nothing was sent.
	ErrDeviceUnreachable = errors.New("device unreachable")

	// ErrDevicesUnreachable is matched by *UnreachableError.
	ErrDevicesUnreachable = errors.New("devices unreachable")

	// ErrCommandTimeout means no matching response arrived in time.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrMoveRejected means the follower answered the move with
	// ok=false: its platform refused or failed the command.
	ErrMoveRejected = errors.New("move rejected by device")

	// ErrOwnDevice means a command named the leader's own id. The
	// leader drops its own packets, so such a command can never
	// complete.
	ErrOwnDevice = errors.New("device is the leader itself")
)

// UnreachableError lists the devices WaitForDevices gave up on.
type UnreachableError struct {
	Missing []uint32
}

func (e *UnreachableError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = fmt.Sprintf("%#x", id)
	}
	return "devices unreachable: " + strings.Join(ids, ", ")
}

// Is reports whether target is ErrDevicesUnreachable.
func (e *UnreachableError) Is(target error) bool {
	return target == ErrDevicesUnreachable
}
