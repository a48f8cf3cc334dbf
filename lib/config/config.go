// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names the kind of deployment.
type Environment string

const (
	// Development is a bench setup on one broadcast segment. The
	// defaults apply unchanged: broadcast mode, info logs.
	Development Environment = "development"
	// Production is a field deployment. Without a production section
	// the network switches to multicast.
	Production Environment = "production"
)

// Config is the configuration shared by the fleet daemons. One file
// can configure both roles; each daemon reads its own section.
type Config struct {
	Environment Environment `yaml:"environment"`

	// DeviceID identifies this node on the medium. YAML accepts hex
	// (0x1f) as well as decimal.
	DeviceID uint32 `yaml:"device_id"`

	// Channel isolates one fleet from others sharing the medium.
	Channel uint32 `yaml:"channel"`

	Network  NetworkConfig  `yaml:"network"`
	Leader   LeaderConfig   `yaml:"leader"`
	Follower FollowerConfig `yaml:"follower"`
	Log      LogConfig      `yaml:"log"`

	// MetricsListen is the host:port serving Prometheus metrics. Empty
	// disables the metrics endpoint.
	MetricsListen string `yaml:"metrics_listen"`

	// Per-environment overrides, applied after the base file.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// NetworkConfig configures the UDP transport.
type NetworkConfig struct {
	// Mode is broadcast, multicast, or unicast.
	Mode string `yaml:"mode"`

	// Address is the broadcast address, multicast group, or unicast
	// peer. Empty takes the mode's default.
	Address string `yaml:"address"`

	Port          int    `yaml:"port"`
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"` // zero listens on Port
	Interface     string `yaml:"interface"`
	Loopback      bool   `yaml:"loopback"`
	TTL           int    `yaml:"ttl"`

	PollInterval time.Duration `yaml:"poll_interval"`
	QueueSize    int           `yaml:"queue_size"`

	// SendRate caps datagrams per second. Zero is unlimited.
	SendRate  float64 `yaml:"send_rate"`
	SendBurst int     `yaml:"send_burst"`
}

// LeaderConfig configures antenny-leader.
type LeaderConfig struct {
	OfflineThreshold  time.Duration `yaml:"offline_threshold"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatWait     time.Duration `yaml:"heartbeat_wait"`
	ResponseTimeout   time.Duration `yaml:"response_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	RTTWindow         int           `yaml:"rtt_window"`

	// CompensateClockOffset applies probed clock offsets to moves.
	CompensateClockOffset bool `yaml:"compensate_clock_offset"`

	// WaitFor lists devices that must answer before the control socket
	// opens. WaitTimeout bounds that wait.
	WaitFor     []uint32      `yaml:"wait_for"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	ControlSocket string `yaml:"control_socket"`
}

// FollowerConfig configures antenny-follower.
type FollowerConfig struct {
	// Leader is the leader to follow at startup. Zero starts in
	// discovery, answering no heartbeats until told to follow.
	Leader uint32 `yaml:"leader"`

	LeaderCacheSize int           `yaml:"leader_cache_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ControlSocket   string        `yaml:"control_socket"`

	Platform PlatformConfig `yaml:"platform"`
}

// PlatformConfig describes the simulated platform the follower drives
// when no hardware driver is linked in.
type PlatformConfig struct {
	Azimuth   float64 `yaml:"azimuth"`
	Elevation float64 `yaml:"elevation"`

	MinAzimuth   float64 `yaml:"min_azimuth"`
	MaxAzimuth   float64 `yaml:"max_azimuth"`
	MinElevation float64 `yaml:"min_elevation"`
	MaxElevation float64 `yaml:"max_elevation"`

	// GPS reports a fixed position when set.
	GPS *PositionConfig `yaml:"gps,omitempty"`
}

// PositionConfig is a fixed GPS position.
type PositionConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
}

// LogConfig configures the daemon logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
}

// Overrides holds the fields an environment section may replace.
type Overrides struct {
	Network       *NetworkOverrides `yaml:"network,omitempty"`
	Log           *LogConfig        `yaml:"log,omitempty"`
	MetricsListen *string           `yaml:"metrics_listen,omitempty"`
}

// NetworkOverrides is the overridable subset of NetworkConfig.
type NetworkOverrides struct {
	Mode      string `yaml:"mode,omitempty"`
	Address   string `yaml:"address,omitempty"`
	Interface string `yaml:"interface,omitempty"`
	Loopback  *bool  `yaml:"loopback,omitempty"`
}

const (
	DefaultPort           = 31337
	DefaultChannel        = 0xA27E
	defaultRuntime        = "${XDG_RUNTIME_DIR:-/run/antenny}"
	defaultLeaderSocket   = defaultRuntime + "/leader.sock"
	defaultFollowerSocket = defaultRuntime + "/follower.sock"
)

// Default returns a runnable development configuration. It is the base
// the config file is merged onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		DeviceID:    0x01,
		Channel:     DefaultChannel,
		Network: NetworkConfig{
			Mode:         "broadcast",
			Port:         DefaultPort,
			TTL:          1,
			PollInterval: 10 * time.Millisecond,
			QueueSize:    256,
			SendBurst:    1,
		},
		Leader: LeaderConfig{
			OfflineThreshold:  10 * time.Second,
			HeartbeatInterval: 2 * time.Second,
			HeartbeatWait:     500 * time.Millisecond,
			ResponseTimeout:   5 * time.Second,
			PollInterval:      5 * time.Millisecond,
			RTTWindow:         32,
			WaitTimeout:       30 * time.Second,
			ControlSocket:     defaultLeaderSocket,
		},
		Follower: FollowerConfig{
			LeaderCacheSize: 64,
			PollInterval:    10 * time.Millisecond,
			ControlSocket:   defaultFollowerSocket,
			Platform: PlatformConfig{
				MinAzimuth:   -360,
				MaxAzimuth:   360,
				MinElevation: 0,
				MaxElevation: 90,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// EnvVar names the environment variable Load reads.
const EnvVar = "ANTENNY_CONFIG"

// Load loads the file named by ANTENNY_CONFIG. There is no search path
// and no fallback: an unset variable is an error.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your antenny.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path onto Default, applies the
// section for the configured environment, and expands ${VAR} and
// ${VAR:-default} in socket paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.ExpandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Field units default to multicast on the standard group
		// unless the file says otherwise.
		if overrides == nil {
			overrides = &Overrides{Network: &NetworkOverrides{Mode: "multicast"}}
		}
	}
	if overrides == nil {
		return
	}

	if network := overrides.Network; network != nil {
		if network.Mode != "" {
			c.Network.Mode = network.Mode
		}
		if network.Address != "" {
			c.Network.Address = network.Address
		}
		if network.Interface != "" {
			c.Network.Interface = network.Interface
		}
		if network.Loopback != nil {
			c.Network.Loopback = *network.Loopback
		}
	}
	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
	if overrides.MetricsListen != nil {
		c.MetricsListen = *overrides.MetricsListen
	}
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in the socket
// paths. Call it again after overriding a path from a flag.
func (c *Config) ExpandVariables() {
	c.Leader.ControlSocket = expandVars(c.Leader.ControlSocket)
	c.Follower.ControlSocket = expandVars(c.Follower.ControlSocket)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	modes := []string{"broadcast", "multicast", "unicast"}
	if !slices.Contains(modes, c.Network.Mode) {
		errs = append(errs, fmt.Errorf("network.mode must be one of %v, got %q", modes, c.Network.Mode))
	}
	if c.Network.Mode == "unicast" && c.Network.Address == "" {
		errs = append(errs, errors.New("network.address is required in unicast mode"))
	}
	if c.Network.Address != "" && net.ParseIP(c.Network.Address) == nil {
		errs = append(errs, fmt.Errorf("network.address %q is not an IP address", c.Network.Address))
	}
	if c.Network.Port < 1 || c.Network.Port > 65535 {
		errs = append(errs, fmt.Errorf("network.port %d out of range", c.Network.Port))
	}
	if c.Network.ListenPort < 0 || c.Network.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("network.listen_port %d out of range", c.Network.ListenPort))
	}
	if c.Network.SendRate < 0 {
		errs = append(errs, errors.New("network.send_rate must not be negative"))
	}

	if c.Leader.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("leader.heartbeat_interval must be positive"))
	}
	if c.Leader.HeartbeatWait <= 0 || c.Leader.HeartbeatWait >= c.Leader.HeartbeatInterval {
		errs = append(errs, errors.New("leader.heartbeat_wait must be positive and shorter than leader.heartbeat_interval"))
	}
	if c.Leader.OfflineThreshold <= c.Leader.HeartbeatInterval {
		errs = append(errs, errors.New("leader.offline_threshold must exceed leader.heartbeat_interval"))
	}
	if c.Leader.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("leader.response_timeout must be positive"))
	}
	if c.Leader.ControlSocket == "" {
		errs = append(errs, errors.New("leader.control_socket is required"))
	}
	if slices.Contains(c.Leader.WaitFor, c.DeviceID) {
		errs = append(errs, fmt.Errorf("leader.wait_for contains this node's own id %#x", c.DeviceID))
	}

	if c.Follower.Leader != 0 && c.Follower.Leader == c.DeviceID {
		errs = append(errs, fmt.Errorf("follower.leader %#x is this node's own id", c.Follower.Leader))
	}
	if c.Follower.ControlSocket == "" {
		errs = append(errs, errors.New("follower.control_socket is required"))
	}
	platform := c.Follower.Platform
	if platform.MinAzimuth >= platform.MaxAzimuth || platform.MinElevation >= platform.MaxElevation {
		errs = append(errs, errors.New("follower.platform limits must have min below max"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
