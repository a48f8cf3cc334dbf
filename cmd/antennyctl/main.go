// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Antennyctl is the command-line client for antenny-leader and
// antenny-follower. Run "antennyctl --help" for the command list.
package main

import (
	"fmt"
	"os"

	"github.com/antenny/fleet/cmd/antennyctl/commands"
)

func main() {
	if err := commands.Root(os.Stdout).Execute(os.Args[1:]); err != nil {
		// Commands that already printed their outcome return an
		// ExitError; skip the redundant error line.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
