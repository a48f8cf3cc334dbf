// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/metrics"
	"github.com/antenny/fleet/lib/wire"
	"github.com/antenny/fleet/platform"
	"github.com/antenny/fleet/transport"
)

const (
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultLeaderCacheSize = 64
)

// Config describes a Node.
type Config struct {
	DeviceID uint32
	Channel  uint32

	// PollInterval bounds each read of the transport, and so how
	// quickly Stop returns.
	PollInterval time.Duration

	// LeaderCacheSize bounds how many discovered leaders are
	// remembered. The least recently heard is forgotten first.
	LeaderCacheSize int

	// Metrics is optional.
	Metrics *metrics.Fleet
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LeaderCacheSize <= 0 {
		c.LeaderCacheSize = DefaultLeaderCacheSize
	}
	return c
}

// DiscoveredLeader is a leader whose heartbeats this node has heard.
type DiscoveredLeader struct {
	DeviceID   uint32
	Source     string
	FirstHeard time.Time
	LastHeard  time.Time
	Heartbeats uint64
}

// Node is the follower side of the fleet. It answers the leader it
// follows and executes the moves addressed to it.
type Node struct {
	config     Config
	conn       transport.Conn
	controller platform.Controller
	gps        platform.GPS
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Fleet

	// leaders is the discovery cache. leadersMu makes the
	// read-modify-write of an entry atomic.
	leadersMu sync.Mutex
	leaders   *lru.Cache[uint32, DiscoveredLeader]

	// platformMu serializes platform calls: scheduled moves run in
	// their own goroutines and status reads come from dispatch.
	platformMu sync.Mutex

	mu        sync.Mutex
	following uint32
	hasLeader bool
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	moves     sync.WaitGroup
	stopOnce  sync.Once
}

// New creates a Node. gps may be nil for devices without a receiver.
func New(config Config, conn transport.Conn, controller platform.Controller, gps platform.GPS, clk clock.Clock, logger *slog.Logger) (*Node, error) {
	config = config.withDefaults()
	leaders, err := lru.New[uint32, DiscoveredLeader](config.LeaderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating leader cache: %w", err)
	}
	if gps == nil {
		gps = platform.NoGPS{}
	}
	return &Node{
		config:     config,
		conn:       conn,
		controller: controller,
		gps:        gps,
		clock:      clk,
		logger:     logger.With("role", "follower", "device_id", fmt.Sprintf("%#x", config.DeviceID), "channel", fmt.Sprintf("%#x", config.Channel)),
		metrics:    config.Metrics,
		leaders:    leaders,
		done:       make(chan struct{}),
	}, nil
}

// Follow selects the leader whose heartbeats and pings are answered.
func (n *Node) Follow(leaderID uint32) {
	n.mu.Lock()
	n.following, n.hasLeader = leaderID, true
	n.mu.Unlock()
	n.logger.Info("following leader", "leader", fmt.Sprintf("%#x", leaderID))
}

// Following reports the followed leader, if any.
func (n *Node) Following() (uint32, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.following, n.hasLeader
}

func (n *Node) isFollowed(id uint32) bool {
	leader, ok := n.Following()
	return ok && leader == id
}

// Leaders returns the discovered leaders, most recently heard first.
func (n *Node) Leaders() []DiscoveredLeader {
	n.leadersMu.Lock()
	leaders := n.leaders.Values()
	n.leadersMu.Unlock()
	sort.SliceStable(leaders, func(i, j int) bool {
		return leaders[i].LastHeard.After(leaders[j].LastHeard)
	})
	return leaders
}

// Start launches the dispatch loop. It runs until Stop, until ctx is
// cancelled, or until the transport stops.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return errors.New("follower already started")
	}
	dispatchContext, cancel := context.WithCancel(ctx)
	n.running = true
	n.cancel = cancel
	go n.dispatch(dispatchContext)
	n.logger.Info("follower started")
	return nil
}

// Stop ends dispatch, cancels pending moves, and waits for both.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		running, cancel := n.running, n.cancel
		n.mu.Unlock()
		if !running {
			return
		}
		cancel()
		<-n.done
		n.moves.Wait()
		n.logger.Info("follower stopped")
	})
}

func (n *Node) dispatch(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.conn.Done():
			return
		default:
		}

		datagram, ok := n.conn.Receive(n.config.PollInterval)
		if !ok {
			continue
		}
		n.handle(ctx, datagram)
	}
}

func (n *Node) handle(ctx context.Context, datagram transport.Datagram) {
	packet, err := wire.Decode(datagram.Data)
	if err != nil {
		reason := metrics.DropMalformed
		if errors.Is(err, wire.ErrUnknownPayload) {
			reason = metrics.DropUnknown
		}
		n.metrics.PacketDropped(reason)
		n.logger.Debug("dropping undecodable datagram", "source", datagram.Source.String(), "error", err)
		return
	}
	if packet.Channel != n.config.Channel {
		n.metrics.PacketDropped(metrics.DropChannel)
		return
	}
	if packet.DeviceID == n.config.DeviceID || packet.Payload.Type().IsResponse() {
		return
	}
	if targeted, ok := packet.Payload.(wire.Targeted); ok && targeted.Target() != n.config.DeviceID {
		n.metrics.PacketDropped(metrics.DropForeignTarget)
		return
	}

	switch payload := packet.Payload.(type) {
	case wire.HeartbeatRequest:
		n.heartbeat(packet.DeviceID, datagram)
	case wire.MoveRequest:
		n.schedule(ctx, packet.DeviceID, payload)
	case wire.StatusRequest:
		n.status(packet.DeviceID)
	case wire.PingRequest:
		n.ping(packet.DeviceID, payload, datagram.ReceivedAt)
	}
}

func (n *Node) reply(payload wire.Payload) {
	frame, err := wire.Encode(wire.Packet{
		DeviceID: n.config.DeviceID,
		Channel:  n.config.Channel,
		Payload:  payload,
	})
	if err == nil {
		err = n.conn.Send(frame)
	}
	if err != nil {
		n.logger.Warn("sending reply failed", "type", payload.Type().String(), "error", err)
	}
}

func (n *Node) heartbeat(leaderID uint32, datagram transport.Datagram) {
	now := n.clock.Now()

	n.leadersMu.Lock()
	leader, known := n.leaders.Get(leaderID)
	if !known {
		leader = DiscoveredLeader{DeviceID: leaderID, FirstHeard: now}
	}
	leader.LastHeard = now
	leader.Heartbeats++
	if datagram.Source != nil {
		leader.Source = datagram.Source.String()
	}
	n.leaders.Add(leaderID, leader)
	n.leadersMu.Unlock()

	if !known {
		n.logger.Info("discovered leader", "leader", fmt.Sprintf("%#x", leaderID), "source", leader.Source)
	}
	if n.isFollowed(leaderID) {
		n.reply(wire.HeartbeatResponse{})
	}
}

// schedule arms a move for its instant on the local clock. Moves whose
// instant has already passed are dropped without a reply; the leader's
// wait timing out is its signal that the move did not happen.
func (n *Node) schedule(ctx context.Context, leaderID uint32, request wire.MoveRequest) {
	now := n.clock.Now()
	at := request.MoveAt.Time()
	logger := n.logger.With(
		"leader", fmt.Sprintf("%#x", leaderID),
		"azimuth", request.Azimuth,
		"elevation", request.Elevation,
		"move_at", at,
	)
	if !at.After(now) {
		n.metrics.FollowerMove(metrics.FollowerLate)
		logger.Warn("dropping late move", "late_by", now.Sub(at))
		return
	}

	delay := at.Sub(now)
	timer := n.clock.After(delay)
	logger.Debug("move scheduled", "delay", delay)

	n.moves.Add(1)
	go func() {
		defer n.moves.Done()
		select {
		case <-timer:
		case <-ctx.Done():
			logger.Info("scheduled move cancelled")
			return
		}

		err := n.execute(request.Azimuth, request.Elevation)
		if err != nil {
			n.metrics.FollowerMove(metrics.FollowerFailed)
			logger.Error("move failed", "error", err)
		} else {
			n.metrics.FollowerMove(metrics.FollowerExecuted)
			logger.Info("move executed")
		}
		n.reply(wire.MoveResponse{TargetDeviceID: n.config.DeviceID, OK: err == nil})
	}()
}

func (n *Node) execute(azimuth, elevation float64) error {
	n.platformMu.Lock()
	defer n.platformMu.Unlock()
	if err := n.controller.SetAzimuth(azimuth); err != nil {
		return fmt.Errorf("setting azimuth: %w", err)
	}
	if err := n.controller.SetElevation(elevation); err != nil {
		return fmt.Errorf("setting elevation: %w", err)
	}
	return nil
}

// Pointing reads the platform's current angles.
func (n *Node) Pointing() (azimuth, elevation float64, err error) {
	n.platformMu.Lock()
	defer n.platformMu.Unlock()
	azimuth, azimuthErr := n.controller.Azimuth()
	elevation, elevationErr := n.controller.Elevation()
	return azimuth, elevation, errors.Join(azimuthErr, elevationErr)
}

// Position reads the GPS receiver.
func (n *Node) Position() (platform.GPSStatus, error) {
	return n.gps.Status()
}

func (n *Node) status(leaderID uint32) {
	azimuth, elevation, err := n.Pointing()
	if err != nil {
		n.logger.Error("reading pointing for status failed", "leader", fmt.Sprintf("%#x", leaderID), "error", err)
		return
	}

	response := wire.StatusResponse{
		TargetDeviceID: n.config.DeviceID,
		Azimuth:        azimuth,
		Elevation:      elevation,
	}
	position, err := n.Position()
	if err != nil {
		n.logger.Warn("reading GPS failed", "error", err)
	} else if position.Valid {
		response.Latitude = position.Latitude
		response.Longitude = position.Longitude
		response.PositionValid = true
	}
	n.reply(response)
}

func (n *Node) ping(leaderID uint32, request wire.PingRequest, receivedAt time.Time) {
	if !n.isFollowed(leaderID) {
		return
	}
	n.reply(wire.PingResponse{
		TargetDeviceID: n.config.DeviceID,
		SentAt:         request.SentAt,
		ReceivedAt:     wire.InstantOf(receivedAt),
	})
}
