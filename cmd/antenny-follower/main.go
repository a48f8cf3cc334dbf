// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Antenny-follower runs one antenna of a fleet. It answers heartbeats
// and pings from the leader it follows, executes moves addressed to it
// at their scheduled instants, and reports pointing and position on
// request.
//
// This build drives the simulated platform described by the config's
// follower.platform section. The control socket reports local status,
// lists discovered leaders, and switches the followed leader.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/antenny/fleet/follower"
	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/config"
	"github.com/antenny/fleet/lib/metrics"
	"github.com/antenny/fleet/lib/process"
	"github.com/antenny/fleet/lib/service"
	"github.com/antenny/fleet/lib/version"
	"github.com/antenny/fleet/platform"
	"github.com/antenny/fleet/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	deviceID    uint32
	channel     uint32
	leader      uint32
	socketPath  string
	logLevel    string
	showVersion bool
}

func parseOptions(args []string) (*options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("antenny-follower", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to antenny.yaml (default: $ANTENNY_CONFIG)")
	flagSet.Uint32Var(&opts.deviceID, "device-id", 0, "this follower's device id (decimal or 0x hex)")
	flagSet.Uint32Var(&opts.channel, "channel", 0, "fleet channel (decimal or 0x hex)")
	flagSet.Uint32Var(&opts.leader, "leader", 0, "leader to follow at startup")
	flagSet.StringVar(&opts.socketPath, "socket", "", "control socket path")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}
	return &opts, flagSet, nil
}

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
	if flagSet.Changed("leader") {
		cfg.Follower.Leader = opts.leader
	}
	if opts.socketPath != "" {
		cfg.Follower.ControlSocket = opts.socketPath
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

// newPlatform builds the simulated controller and GPS from config.
func newPlatform(clk clock.Clock, settings config.PlatformConfig) (*platform.Simulated, platform.GPS) {
	limits := platform.Limits{
		MinAzimuth:   settings.MinAzimuth,
		MaxAzimuth:   settings.MaxAzimuth,
		MinElevation: settings.MinElevation,
		MaxElevation: settings.MaxElevation,
	}
	controller := platform.NewSimulated(clk, limits, settings.Azimuth, settings.Elevation)
	if settings.GPS == nil {
		return controller, platform.NoGPS{}
	}
	return controller, platform.FixedGPS{
		Valid:     true,
		Latitude:  settings.GPS.Latitude,
		Longitude: settings.GPS.Longitude,
		Altitude:  settings.GPS.Altitude,
	}
}

func run() error {
	opts, flagSet, err := parseOptions(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("antenny-follower %s\n", version.Info())
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
	logger := process.NewLogger(level).With("component", "antenny-follower")

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

	controller, gps := newPlatform(clk, cfg.Follower.Platform)
	node, err := follower.New(follower.Config{
		DeviceID:        cfg.DeviceID,
		Channel:         cfg.Channel,
		PollInterval:    cfg.Follower.PollInterval,
		LeaderCacheSize: cfg.Follower.LeaderCacheSize,
		Metrics:         fleetMetrics,
	}, conn, controller, gps, clk, logger)
	if err != nil {
		return err
	}
	if cfg.Follower.Leader != 0 {
		node.Follow(cfg.Follower.Leader)
	}
	if err := node.Start(ctx); err != nil {
		return err
	}
	defer node.Stop()

	group, groupContext := errgroup.WithContext(ctx)
	server := service.NewSocketServer(cfg.Follower.ControlSocket, logger)
	handlers := &controlHandlers{node: node, deviceID: cfg.DeviceID, channel: cfg.Channel}
	handlers.register(server)
	group.Go(func() error { return server.Serve(groupContext) })
	if cfg.MetricsListen != "" {
		group.Go(func() error {
			return fleetMetrics.Serve(groupContext, cfg.MetricsListen, logger)
		})
	}

	logger.Info("follower running",
		"device_id", fmt.Sprintf("%#x", cfg.DeviceID),
		"channel", fmt.Sprintf("%#x", cfg.Channel),
		"socket", cfg.Follower.ControlSocket,
		"version", version.Short(),
	)

	err = group.Wait()
	logger.Info("shutting down")
	return err
}
