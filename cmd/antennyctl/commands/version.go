// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/antenny/fleet/cmd/antennyctl/cli"
	"github.com/antenny/fleet/lib/control"
	"github.com/antenny/fleet/lib/version"
)

type versionParams struct {
	connection
	cli.JSONOutput
	Daemon string `flag:"daemon" desc:"also ask a running daemon: leader or follower"`
}

func versionCommand(out io.Writer) *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(args []string) error {
			builds := map[string]version.Build{"antennyctl": version.Current()}
			switch params.Daemon {
			case "":
			case roleLeader, roleFollower:
				var build version.Build
				if err := params.call(params.Daemon, control.ActionVersion, nil, &build); err != nil {
					return err
				}
				builds["antenny-"+params.Daemon] = build
			default:
				return fmt.Errorf("--daemon must be leader or follower, got %q", params.Daemon)
			}

			if done, err := params.EmitJSON(out, builds); done {
				return err
			}
			fmt.Fprintf(out, "antennyctl %s\n", version.Info())
			if build, ok := builds["antenny-"+params.Daemon]; ok {
				fmt.Fprintf(out, "antenny-%s %s (%s, protocol v%d)\n", params.Daemon, build.Version, build.Commit, build.ProtocolVersion)
			}
			return nil
		},
	}
}
