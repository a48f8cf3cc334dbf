// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Antenny-leader coordinates a fleet of antenna followers over UDP
// broadcast or multicast. It runs heartbeat rounds to keep the liveness
// view and round-trip statistics current, and serves a control socket
// through which antennyctl schedules synchronized moves.
//
// On startup:
//  1. Loads the config from --config or ANTENNY_CONFIG; with neither,
//     runs on the built-in development defaults.
//  2. Binds the UDP transport and starts the coordinator.
//  3. Starts periodic heartbeats.
//  4. Optionally waits until every --wait-for device has answered.
//  5. Serves the control socket, and metrics when metrics_listen is set.
//
// SIGINT or SIGTERM stops everything and removes the socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/antenny/fleet/leader"
	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/config"
	"github.com/antenny/fleet/lib/control"
	"github.com/antenny/fleet/lib/metrics"
	"github.com/antenny/fleet/lib/process"
	"github.com/antenny/fleet/lib/service"
	"github.com/antenny/fleet/lib/version"
	"github.com/antenny/fleet/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// options holds the command-line flags. Flags that are set override
// the config file.
type options struct {
	configPath  string
	deviceID    uint32
	channel     uint32
	waitFor     []string
	socketPath  string
	logLevel    string
	showVersion bool
}

func parseOptions(args []string) (*options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("antenny-leader", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to antenny.yaml (default: $ANTENNY_CONFIG)")
	flagSet.Uint32Var(&opts.deviceID, "device-id", 0, "this leader's device id (decimal or 0x hex)")
	flagSet.Uint32Var(&opts.channel, "channel", 0, "fleet channel (decimal or 0x hex)")
	flagSet.StringSliceVar(&opts.waitFor, "wait-for", nil, "devices that must answer before the control socket opens")
	flagSet.StringVar(&opts.socketPath, "socket", "", "control socket path")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}
	return &opts, flagSet, nil
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(opts *options, flagSet *pflag.FlagSet) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandVariables()
	}
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("device-id") {
		cfg.DeviceID = opts.deviceID
	}
	if flagSet.Changed("channel") {
		cfg.Channel = opts.channel
	}
	if flagSet.Changed("wait-for") {
		devices, err := control.ParseDevices(opts.waitFor)
		if err != nil {
			return nil, fmt.Errorf("--wait-for: %w", err)
		}
		cfg.Leader.WaitFor = devices
	}
	if opts.socketPath != "" {
		cfg.Leader.ControlSocket = opts.socketPath
		cfg.ExpandVariables()
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run() error {
	opts, flagSet, err := parseOptions(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("antenny-leader %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		return err
	}
	level, err := process.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := process.NewLogger(level).With("component", "antenny-leader")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	fleetMetrics := metrics.New()

	conn, err := transport.NewUDP(transport.ConfigFrom(cfg.Network), clk, logger)
	if err != nil {
		return err
	}
	if err := conn.Start(ctx); err != nil {
		return err
	}
	defer conn.Stop()

	coordinator := leader.New(leader.Config{
		DeviceID:              cfg.DeviceID,
		Channel:               cfg.Channel,
		OfflineThreshold:      cfg.Leader.OfflineThreshold,
		RTTWindow:             cfg.Leader.RTTWindow,
		PollInterval:          cfg.Leader.PollInterval,
		ResponseTimeout:       cfg.Leader.ResponseTimeout,
		HeartbeatWait:         cfg.Leader.HeartbeatWait,
		CompensateClockOffset: cfg.Leader.CompensateClockOffset,
		Metrics:               fleetMetrics,
	}, conn, clk, logger)
	if err := coordinator.Start(ctx); err != nil {
		return err
	}
	defer coordinator.Stop()

	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		return coordinator.RunHeartbeats(groupContext, cfg.Leader.HeartbeatInterval, cfg.Leader.HeartbeatWait)
	})
	if cfg.MetricsListen != "" {
		group.Go(func() error {
			return fleetMetrics.Serve(groupContext, cfg.MetricsListen, logger)
		})
	}
	group.Go(func() error {
		if len(cfg.Leader.WaitFor) > 0 {
			logger.Info("waiting for devices", "devices", len(cfg.Leader.WaitFor), "timeout", cfg.Leader.WaitTimeout)
			if err := coordinator.WaitForDevices(groupContext, cfg.Leader.WaitFor, cfg.Leader.WaitTimeout); err != nil {
				if groupContext.Err() != nil {
					return nil
				}
				return err
			}
			logger.Info("all devices online")
		}

		server := service.NewSocketServer(cfg.Leader.ControlSocket, logger)
		handlers := &controlHandlers{
			coordinator:   coordinator,
			clock:         clk,
			heartbeatWait: cfg.Leader.HeartbeatWait,
			waitTimeout:   cfg.Leader.WaitTimeout,
		}
		handlers.register(server)
		return server.Serve(groupContext)
	})

	logger.Info("leader running",
		"device_id", fmt.Sprintf("%#x", cfg.DeviceID),
		"channel", fmt.Sprintf("%#x", cfg.Channel),
		"socket", cfg.Leader.ControlSocket,
		"version", version.Short(),
	)

	err = group.Wait()
	logger.Info("shutting down")
	return err
}
