// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the antennyctl command tree. Each command
// is a thin client of a daemon control socket: it sends one action,
// then prints the result as a table or, with --json, as JSON.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/antenny/fleet/cmd/antennyctl/cli"
	"github.com/antenny/fleet/lib/config"
	"github.com/antenny/fleet/lib/service"
)

// Root returns the command tree. Results are written to out.
func Root(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "antennyctl",
		Summary: "Control an antenna fleet",
		Description: `Antennyctl talks to the control sockets of antenny-leader and
antenny-follower. Leader commands schedule synchronized moves and
inspect the fleet; follower commands inspect and steer one node.`,
		Subcommands: []*cli.Command{
			fleetCommand(out),
			moveCommand(out),
			statusCommand(out),
			waitCommand(out),
			heartbeatCommand(out),
			probeCommand(out),
			localCommand(out),
			leadersCommand(out),
			followCommand(out),
			versionCommand(out),
		},
		Examples: []cli.Example{
			{Description: "List the devices the leader knows", Command: "antennyctl fleet"},
			{Description: "Point device 0x1 at azimuth 90, elevation 45, two seconds from now", Command: "antennyctl move 0x1 --azimuth 90 --elevation 45 --delay 2s"},
		},
	}
}

// Daemon roles, used to pick a default socket.
const (
	roleLeader   = "leader"
	roleFollower = "follower"
)

// connection is embedded by every command that calls a daemon.
type connection struct {
	Socket string `flag:"socket" desc:"control socket path (default: from $ANTENNY_CONFIG, else the runtime directory)"`
}

// client returns a client for the explicit socket or the role's
// configured default.
func (c *connection) client(role string) (*service.Client, error) {
	if c.Socket != "" {
		return service.NewClient(c.Socket), nil
	}
	path, err := defaultSocket(role)
	if err != nil {
		return nil, err
	}
	return service.NewClient(path), nil
}

func defaultSocket(role string) (string, error) {
	cfg := config.Default()
	cfg.ExpandVariables()
	if os.Getenv(config.EnvVar) != "" {
		loaded, err := config.Load()
		if err != nil {
			return "", fmt.Errorf("resolving %s socket: %w", role, err)
		}
		cfg = loaded
	}
	if role == roleFollower {
		return cfg.Follower.ControlSocket, nil
	}
	return cfg.Leader.ControlSocket, nil
}

// call runs one action, cancelled by SIGINT or SIGTERM.
func (c *connection) call(role, action string, fields map[string]any, result any) error {
	client, err := c.client(role)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return client.Call(ctx, action, fields, result)
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, want int, usage string) error {
	if len(args) != want {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}
