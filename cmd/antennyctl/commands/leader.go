// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/antenny/fleet/cmd/antennyctl/cli"
	"github.com/antenny/fleet/lib/control"
	"github.com/antenny/fleet/lib/service"
)

type fleetParams struct {
	connection
	cli.JSONOutput
}

func fleetCommand(out io.Writer) *cli.Command {
	var params fleetParams
	return &cli.Command{
		Name:    "fleet",
		Summary: "List the devices the leader has heard from",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("fleet", &params) },
		Run: func(args []string) error {
			var devices []control.DeviceRecord
			if err := params.call(roleLeader, control.ActionFleet, nil, &devices); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, devices); done {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(out, "no devices have answered a heartbeat")
				return nil
			}
			tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "DEVICE\tSTATE\tRTT\tSAMPLES\tOFFSET\tLAST SEEN")
			for _, device := range devices {
				state := "offline"
				if device.Online {
					state = "online"
				}
				offset := "-"
				if device.HasOffset {
					offset = device.ClockOffset.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					control.FormatDevice(device.Device), state, formatRTT(device.AverageRTT),
					device.Samples, offset, device.LastSeen.Format(time.RFC3339Nano))
			}
			return tw.Flush()
		},
	}
}

type moveParams struct {
	connection
	cli.JSONOutput
	Azimuth   float64       `flag:"azimuth" desc:"azimuth in degrees"`
	Elevation float64       `flag:"elevation" desc:"elevation in degrees"`
	At        string        `flag:"at" desc:"desired instant (RFC 3339); overrides --delay"`
	Delay     time.Duration `flag:"delay" desc:"schedule the move this long after the leader receives it" default:"2s"`
}

func moveCommand(out io.Writer) *cli.Command {
	var params moveParams
	return &cli.Command{
		Name:    "move",
		Summary: "Schedule a synchronized move",
		Description: `Schedule a device to point at the given angles at a future instant.
The leader subtracts half the device's mean round-trip time before
sending, so the move lands at the desired instant on the leader clock.
The command returns once the device confirms the move.`,
		Usage: "antennyctl move <device> --azimuth DEG --elevation DEG [--at TIME | --delay DURATION]",
		Examples: []cli.Example{
			{Description: "Move device 0x1 in five seconds", Command: "antennyctl move 0x1 --azimuth 180 --elevation 20 --delay 5s"},
			{Command: "antennyctl move 0x2 --azimuth 90 --elevation 45 --at 2026-10-17T12:00:00Z"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("move", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "antennyctl move <device> [flags]"); err != nil {
				return err
			}
			device, err := control.ParseDevice(args[0])
			if err != nil {
				return err
			}
			fields := map[string]any{
				"device":    device,
				"azimuth":   params.Azimuth,
				"elevation": params.Elevation,
				"delay":     params.Delay,
			}
			if params.At != "" {
				at, err := time.Parse(time.RFC3339Nano, params.At)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				fields["at"] = at
			}

			cli.NewCommandLogger().Info("waiting for move confirmation",
				"device", control.FormatDevice(device), "delay", params.Delay, "at", params.At)
			var result control.MoveResult
			if err := params.call(roleLeader, control.ActionMove, fields, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, result); done {
				return err
			}
			fmt.Fprintf(out, "%s moved to azimuth %.2f elevation %.2f\n",
				control.FormatDevice(result.Device), result.Azimuth, result.Elevation)
			fmt.Fprintf(out, "  desired      %s\n", result.Desired.Format(time.RFC3339Nano))
			fmt.Fprintf(out, "  sent for     %s (rtt %s)\n", result.Compensated.Format(time.RFC3339Nano), formatRTT(result.AverageRTT))
			fmt.Fprintf(out, "  confirmed at %s\n", result.RespondedAt.Format(time.RFC3339Nano))
			return nil
		},
	}
}

type deviceParams struct {
	connection
	cli.JSONOutput
}

func statusCommand(out io.Writer) *cli.Command {
	var params deviceParams
	return &cli.Command{
		Name:    "status",
		Summary: "Ask a device for its pointing and position",
		Usage:   "antennyctl status <device> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "antennyctl status <device> [flags]"); err != nil {
				return err
			}
			device, err := control.ParseDevice(args[0])
			if err != nil {
				return err
			}
			var status control.DeviceStatus
			if err := params.call(roleLeader, control.ActionStatus, map[string]any{"device": device}, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, status); done {
				return err
			}
			fmt.Fprintf(out, "device     %s\n", control.FormatDevice(status.Device))
			fmt.Fprintf(out, "azimuth    %.2f\n", status.Azimuth)
			fmt.Fprintf(out, "elevation  %.2f\n", status.Elevation)
			fmt.Fprintf(out, "position   %s\n", formatPosition(status.PositionValid, status.Latitude, status.Longitude))
			fmt.Fprintf(out, "rtt        %s\n", formatRTT(status.RTT))
			return nil
		},
	}
}

type waitParams struct {
	connection
	cli.JSONOutput
	Timeout time.Duration `flag:"timeout" desc:"how long to wait (default: the leader's wait_timeout)"`
}

func waitCommand(out io.Writer) *cli.Command {
	var params waitParams
	return &cli.Command{
		Name:    "wait",
		Summary: "Wait until devices answer heartbeats",
		Description: `Run heartbeat rounds until every listed device has answered. Exits 1
and lists the missing devices if the timeout passes first.`,
		Usage: "antennyctl wait <device>... [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("wait", &params) },
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: antennyctl wait <device>... [flags]")
			}
			devices, err := control.ParseDevices(args)
			if err != nil {
				return err
			}
			fields := map[string]any{"devices": devices}
			if params.Timeout > 0 {
				fields["timeout"] = params.Timeout
			}
			cli.NewCommandLogger().Info("waiting for devices", "devices", len(devices))
			var result control.DeviceList
			err = params.call(roleLeader, control.ActionWait, fields, &result)
			var remote *service.RemoteError
			if errors.As(err, &remote) {
				fmt.Fprintln(out, remote.Message)
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, result); done {
				return err
			}
			fmt.Fprintf(out, "%d devices online\n", len(result.Devices))
			return nil
		},
	}
}

type heartbeatParams struct {
	connection
	cli.JSONOutput
	Wait time.Duration `flag:"wait" desc:"how long to collect responses (default: the leader's heartbeat_wait)"`
}

func heartbeatCommand(out io.Writer) *cli.Command {
	var params heartbeatParams
	return &cli.Command{
		Name:    "heartbeat",
		Summary: "Run one heartbeat round and list the responders",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("heartbeat", &params) },
		Run: func(args []string) error {
			var fields map[string]any
			if params.Wait > 0 {
				fields = map[string]any{"wait": params.Wait}
			}
			var result control.DeviceList
			if err := params.call(roleLeader, control.ActionHeartbeat, fields, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, result.Devices); done {
				return err
			}
			if len(result.Devices) == 0 {
				fmt.Fprintln(out, "no responses")
				return nil
			}
			for _, device := range result.Devices {
				fmt.Fprintln(out, control.FormatDevice(device))
			}
			return nil
		},
	}
}

func probeCommand(out io.Writer) *cli.Command {
	var params deviceParams
	return &cli.Command{
		Name:    "probe",
		Summary: "Measure a device's round-trip time and clock offset",
		Usage:   "antennyctl probe <device> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("probe", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "antennyctl probe <device> [flags]"); err != nil {
				return err
			}
			device, err := control.ParseDevice(args[0])
			if err != nil {
				return err
			}
			var result control.ProbeResult
			if err := params.call(roleLeader, control.ActionProbe, map[string]any{"device": device}, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, result); done {
				return err
			}
			fmt.Fprintf(out, "%s rtt %s offset %s\n", control.FormatDevice(result.Device), formatRTT(result.RTT), result.Offset)
			return nil
		},
	}
}

func formatRTT(rtt time.Duration) string {
	if rtt <= 0 {
		return "-"
	}
	return rtt.Round(time.Microsecond).String()
}

func formatPosition(valid bool, latitude, longitude float64) string {
	if !valid {
		return "no fix"
	}
	return fmt.Sprintf("%.6f, %.6f", latitude, longitude)
}
