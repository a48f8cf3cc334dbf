// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/antenny/fleet/cmd/antennyctl/cli"
	"github.com/antenny/fleet/lib/control"
)

type followerParams struct {
	connection
	cli.JSONOutput
}

func localCommand(out io.Writer) *cli.Command {
	var params followerParams
	return &cli.Command{
		Name:    "local",
		Summary: "Show a follower's own pointing, position, and leader",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("local", &params) },
		Run: func(args []string) error {
			var status control.LocalStatus
			if err := params.call(roleFollower, control.ActionStatus, nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, status); done {
				return err
			}
			leader := "none"
			if status.Following {
				leader = control.FormatDevice(status.Leader)
			}
			fmt.Fprintf(out, "device     %s\n", control.FormatDevice(status.Device))
			fmt.Fprintf(out, "channel    %s\n", control.FormatDevice(status.Channel))
			fmt.Fprintf(out, "leader     %s\n", leader)
			fmt.Fprintf(out, "azimuth    %.2f\n", status.Azimuth)
			fmt.Fprintf(out, "elevation  %.2f\n", status.Elevation)
			fmt.Fprintf(out, "position   %s\n", formatPosition(status.PositionValid, status.Latitude, status.Longitude))
			return nil
		},
	}
}

func leadersCommand(out io.Writer) *cli.Command {
	var params followerParams
	return &cli.Command{
		Name:    "leaders",
		Summary: "List the leaders a follower has heard",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("leaders", &params) },
		Run: func(args []string) error {
			var leaders []control.Leader
			if err := params.call(roleFollower, control.ActionLeaders, nil, &leaders); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, leaders); done {
				return err
			}
			if len(leaders) == 0 {
				fmt.Fprintln(out, "no leaders heard")
				return nil
			}
			tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "LEADER\tFOLLOWED\tHEARTBEATS\tSOURCE\tLAST HEARD")
			for _, leader := range leaders {
				followed := ""
				if leader.Followed {
					followed = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					control.FormatDevice(leader.Device), followed, leader.Heartbeats,
					leader.Source, leader.LastHeard.Format(time.RFC3339Nano))
			}
			return tw.Flush()
		},
	}
}

func followCommand(out io.Writer) *cli.Command {
	var params followerParams
	return &cli.Command{
		Name:    "follow",
		Summary: "Make a follower answer a different leader",
		Usage:   "antennyctl follow <leader> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("follow", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "antennyctl follow <leader> [flags]"); err != nil {
				return err
			}
			leader, err := control.ParseDevice(args[0])
			if err != nil {
				return err
			}
			if err := params.call(roleFollower, control.ActionFollow, map[string]any{"leader": leader}, nil); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, control.FollowRequest{Leader: leader}); done {
				return err
			}
			fmt.Fprintf(out, "following %s\n", control.FormatDevice(leader))
			return nil
		},
	}
}
