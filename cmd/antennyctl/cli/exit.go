// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError requests a non-zero exit without printing an error line.
// The command has already written its own output; "wait" returns one
// when devices stay unreachable.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this method to tell
// a handled non-zero exit from an error to display.
func (e *ExitError) ExitCode() int {
	return e.Code
}
