// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "antennyctl",
		Subcommands: []*Command{
			{Name: "status", Run: func(args []string) error { called = "status"; return nil }},
			{Name: "move", Run: func(args []string) error {
				called = "move"
				receivedArgs = args
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"move", "0x1"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "move" {
		t.Errorf("dispatched to %q, want %q", called, "move")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "0x1" {
		t.Errorf("args = %v, want [0x1]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string
	var target string

	command := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--socket", "/custom.sock", "0x2"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socketPath = %q, want %q", socketPath, "/custom.sock")
	}
	if target != "0x2" {
		t.Errorf("target = %q, want %q", target, "0x2")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "move",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("move", pflag.ContinueOnError)
			flagSet.Float64("azimuth", 0, "azimuth in degrees")
			flagSet.Float64("elevation", 0, "elevation in degrees")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--azimuht", "90"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	message := err.Error()
	if !strings.Contains(message, "did you mean --azimuth") {
		t.Errorf("error = %q, want suggestion for --azimuth", message)
	}
	if !strings.Contains(message, "azimuht") {
		t.Errorf("error = %q, should mention the bad flag", message)
	}
	if !strings.Contains(message, "--help") {
		t.Errorf("error = %q, should point to --help", message)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "move",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("move", pflag.ContinueOnError)
			flagSet.Float64("azimuth", 0, "azimuth in degrees")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for a distant flag", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name:        "antennyctl",
		Subcommands: []*Command{{Name: "status"}, {Name: "move"}, {Name: "leaders"}},
	}

	err := root.Execute([]string{"leadrs"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "leaders"`) {
		t.Errorf("error = %q, want suggestion for leaders", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name:        "antennyctl",
		Subcommands: []*Command{{Name: "status"}, {Name: "move"}},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:        "antennyctl",
				Summary:     "Control an antenna fleet",
				Subcommands: []*Command{{Name: "move", Summary: "Schedule a move"}},
			}
			if err := root.Execute([]string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name:        "antennyctl",
		Subcommands: []*Command{{Name: "move", Summary: "Schedule a move"}},
	}

	err := root.Execute([]string{})
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("Execute() = %v, want 'subcommand required'", err)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "antennyctl",
		Description: "Control a leader or follower daemon.",
		Subcommands: []*Command{
			{Name: "fleet", Summary: "List known devices"},
			{Name: "move", Summary: "Schedule a synchronized move"},
		},
		Examples: []Example{
			{Description: "Point device 0x1 south at the horizon", Command: "antennyctl move 0x1 --azimuth 180 --elevation 0"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Control a leader or follower daemon.",
		"Usage:",
		"antennyctl <command> [flags]",
		"Commands:",
		"fleet",
		"Schedule a synchronized move",
		"Examples:",
		"# Point device 0x1 south",
		"antennyctl move 0x1 --azimuth 180",
		"Run 'antennyctl <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:  "status",
		Usage: "antennyctl status <device> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.String("socket", "/run/antenny/leader.sock", "control socket")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()
	for _, want := range []string{"antennyctl status <device> [flags]", "Flags:", "socket"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "antennyctl"}
	move := &Command{Name: "move", parent: root}

	if got := root.fullName(); got != "antennyctl" {
		t.Errorf("root.fullName() = %q", got)
	}
	if got := move.fullName(); got != "antennyctl move" {
		t.Errorf("move.fullName() = %q, want %q", got, "antennyctl move")
	}
}
