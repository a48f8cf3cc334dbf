// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package leader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/liveness"
	"github.com/antenny/fleet/lib/metrics"
	"github.com/antenny/fleet/lib/wire"
	"github.com/antenny/fleet/transport"
)

const (
	DefaultPollInterval    = 5 * time.Millisecond
	DefaultResponseTimeout = 5 * time.Second
	DefaultHeartbeatWait   = 500 * time.Millisecond
	DefaultQueueCapacity   = 256
)

// Config describes a Coordinator. Zero fields take the defaults above
// and the liveness package defaults.
type Config struct {
	// DeviceID is the leader's own id, stamped on every request. Packets
	// carrying it are our own broadcasts echoed back and are ignored.
	DeviceID uint32

	// Channel isolates this fleet from others sharing the medium.
	Channel uint32

	OfflineThreshold time.Duration
	RTTWindow        int

	// PollInterval bounds each read of the transport by the dispatch
	// loop, and so how quickly Stop returns.
	PollInterval time.Duration

	// ResponseTimeout is how long after a move's execution instant, or
	// after a status or ping request, a response is waited for.
	ResponseTimeout time.Duration

	// HeartbeatWait is the length of each round WaitForDevices runs.
	HeartbeatWait time.Duration

	// QueueCapacity bounds each per-type response queue.
	QueueCapacity int

	// CompensateClockOffset adds the device's probed clock offset to
	// the move instant on top of the RTT/2 compensation.
	CompensateClockOffset bool

	// Metrics is optional.
	Metrics *metrics.Fleet
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.HeartbeatWait <= 0 {
		c.HeartbeatWait = DefaultHeartbeatWait
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	return c
}

// MoveResult describes a completed move.
type MoveResult struct {
	DeviceID    uint32
	Azimuth     float64
	Elevation   float64
	Desired     time.Time
	Compensated time.Time
	AverageRTT  time.Duration
	ClockOffset time.Duration
	RespondedAt time.Time
}

// DeviceStatus is a follower's answer to a status request.
type DeviceStatus struct {
	DeviceID      uint32
	Azimuth       float64
	Elevation     float64
	Latitude      float64
	Longitude     float64
	PositionValid bool
	RTT           time.Duration
}

// ProbeResult is the outcome of one ping exchange.
type ProbeResult struct {
	DeviceID uint32
	RTT      time.Duration

	// Offset is the estimated device clock minus leader clock.
	Offset time.Duration
}

// Coordinator is the leader side of the fleet: it runs heartbeat
// rounds, keeps the liveness view, and issues compensated moves.
// All methods are safe for concurrent use. Heartbeat rounds are
// serialized among themselves.
type Coordinator struct {
	config  Config
	conn    transport.Conn
	clock   clock.Clock
	logger  *slog.Logger
	tracker *liveness.Tracker
	router  *Router
	metrics *metrics.Fleet

	heartbeatMu sync.Mutex

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Coordinator sending and receiving on conn. Call Start
// before issuing commands.
func New(config Config, conn transport.Conn, clk clock.Clock, logger *slog.Logger) *Coordinator {
	config = config.withDefaults()
	return &Coordinator{
		config: config,
		conn:   conn,
		clock:  clk,
		logger: logger.With("role", "leader", "device_id", fmt.Sprintf("%#x", config.DeviceID), "channel", fmt.Sprintf("%#x", config.Channel)),
		tracker: liveness.New(liveness.Config{
			OfflineThreshold: config.OfflineThreshold,
			RTTWindow:        config.RTTWindow,
		}, clk),
		router:  NewRouter(config.QueueCapacity),
		metrics: config.Metrics,
		done:    make(chan struct{}),
	}
}

// Tracker exposes the liveness view.
func (c *Coordinator) Tracker() *liveness.Tracker { return c.tracker }

// Router exposes the response queues.
func (c *Coordinator) Router() *Router { return c.router }

// Start launches the dispatch loop. It runs until Stop, until ctx is
// cancelled, or until the transport stops.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("coordinator already started")
	}
	dispatchContext, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	go c.dispatch(dispatchContext)
	c.logger.Info("leader started")
	return nil
}

// Stop ends the dispatch loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		running, cancel := c.running, c.cancel
		c.mu.Unlock()
		if !running {
			return
		}
		cancel()
		<-c.done
		c.logger.Info("leader stopped")
	})
}

func (c *Coordinator) dispatch(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.conn.Done():
			return
		default:
		}

		datagram, ok := c.conn.Receive(c.config.PollInterval)
		if !ok {
			continue
		}
		packet, err := wire.Decode(datagram.Data)
		if err != nil {
			reason := metrics.DropMalformed
			if errors.Is(err, wire.ErrUnknownPayload) {
				reason = metrics.DropUnknown
			}
			c.metrics.PacketDropped(reason)
			c.logger.Debug("dropping undecodable datagram", "source", datagram.Source.String(), "error", err)
			continue
		}
		if packet.Channel != c.config.Channel {
			c.metrics.PacketDropped(metrics.DropChannel)
			continue
		}
		if packet.DeviceID == c.config.DeviceID {
			continue
		}
		// Requests on our channel come from another leader; only
		// responses concern us.
		if !packet.Payload.Type().IsResponse() {
			continue
		}
		c.router.Push(Envelope{
			Packet:     packet,
			Source:     datagram.Source,
			ReceivedAt: datagram.ReceivedAt,
		})
	}
}

func (c *Coordinator) send(payload wire.Payload) error {
	frame, err := wire.Encode(wire.Packet{
		DeviceID: c.config.DeviceID,
		Channel:  c.config.Channel,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", payload.Type(), err)
	}
	if err := c.conn.Send(frame); err != nil {
		return fmt.Errorf("sending %s: %w", payload.Type(), err)
	}
	return nil
}

// await blocks until the router holds an entry of commandType matching
// match, the deadline passes, or ctx is done.
func (c *Coordinator) await(ctx context.Context, commandType wire.CommandType, deadline time.Time, match func(Envelope) bool) (Envelope, error) {
	timer := c.clock.After(clock.Until(c.clock, deadline))
	for {
		changed := c.router.Changed()
		if envelope, ok := c.router.Take(commandType, match); ok {
			return envelope, nil
		}
		select {
		case <-changed:
		case <-timer:
			return Envelope{}, fmt.Errorf("%w: no %s before %s", ErrCommandTimeout, commandType, deadline.Format(time.RFC3339Nano))
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// HeartbeatRound broadcasts one heartbeat request and records every
// response that arrives within maxWait. It returns the responding
// device ids in ascending order. Responses received before this round's
// send time belong to an earlier round and are discarded.
func (c *Coordinator) HeartbeatRound(ctx context.Context, maxWait time.Duration) ([]uint32, error) {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()

	sentAt := c.clock.Now()
	if err := c.send(wire.HeartbeatRequest{}); err != nil {
		return nil, err
	}
	c.metrics.HeartbeatRound()

	responders := make(map[uint32]struct{})
	collect := func() {
		for _, envelope := range c.router.TakeAll(wire.CommandHeartbeatResponse, nil) {
			if envelope.ReceivedAt.Before(sentAt) {
				continue
			}
			id := envelope.Packet.DeviceID
			rtt := envelope.ReceivedAt.Sub(sentAt)
			c.tracker.RecordResponse(id, rtt)
			average, _ := c.tracker.AverageRTT(id)
			c.metrics.DeviceRTT(id, average)
			responders[id] = struct{}{}
		}
	}

	timer := c.clock.After(maxWait)
	var waitErr error
wait:
	for {
		changed := c.router.Changed()
		collect()
		select {
		case <-changed:
		case <-timer:
			break wait
		case <-ctx.Done():
			waitErr = ctx.Err()
			break wait
		}
	}
	collect()

	ids := make([]uint32, 0, len(responders))
	for id := range responders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	c.metrics.DevicesOnline(c.onlineCount())
	c.logger.Debug("heartbeat round complete", "responders", len(ids))
	return ids, waitErr
}

func (c *Coordinator) onlineCount() int {
	count := 0
	for _, record := range c.tracker.Snapshot() {
		if record.Online {
			count++
		}
	}
	return count
}

// WaitForDevices runs heartbeat rounds until every id in ids has a
// liveness record or maxDelay elapses. On timeout the error is an
// *UnreachableError naming the devices still missing. Waiting for the
// leader's own id fails immediately with ErrOwnDevice.
func (c *Coordinator) WaitForDevices(ctx context.Context, ids []uint32, maxDelay time.Duration) error {
	for _, id := range ids {
		if id == c.config.DeviceID {
			return fmt.Errorf("%w: cannot wait for %#x", ErrOwnDevice, id)
		}
	}
	deadline := c.clock.Now().Add(maxDelay)
	for {
		missing := c.missing(ids)
		if len(missing) == 0 {
			return nil
		}
		remaining := clock.Until(c.clock, deadline)
		if remaining <= 0 {
			return &UnreachableError{Missing: missing}
		}
		if _, err := c.HeartbeatRound(ctx, min(c.config.HeartbeatWait, remaining)); err != nil {
			return err
		}
	}
}

func (c *Coordinator) missing(ids []uint32) []uint32 {
	var missing []uint32
	for _, id := range ids {
		if !c.tracker.Known(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func (c *Coordinator) requireOnline(id uint32) error {
	online, err := c.tracker.IsOnline(id)
	if err != nil {
		return fmt.Errorf("%w: %#x has never answered a heartbeat", ErrDeviceUnreachable, id)
	}
	if !online {
		return fmt.Errorf("%w: %#x silent for longer than %s", ErrDeviceUnreachable, id, c.tracker.OfflineThreshold())
	}
	return nil
}

// Move commands device id to point at the given angles at desired
// (leader clock). The instant sent is desired minus half the device's
// mean RTT, plus its probed clock offset when configured. Move returns
// once the device answers, or fails with ErrCommandTimeout if no answer
// arrives by the sent instant plus ResponseTimeout. An unreachable
// device fails with ErrDeviceUnreachable and nothing is sent.
func (c *Coordinator) Move(ctx context.Context, id uint32, azimuth, elevation float64, desired time.Time) (MoveResult, error) {
	result := MoveResult{DeviceID: id, Azimuth: azimuth, Elevation: elevation, Desired: desired}

	if err := c.requireOnline(id); err != nil {
		c.metrics.MoveCompleted(metrics.MoveUnreachable)
		return result, err
	}

	averageRTT, _ := c.tracker.AverageRTT(id)
	compensated := desired.Add(-averageRTT / 2)
	if c.config.CompensateClockOffset {
		offset, _ := c.tracker.ClockOffset(id)
		result.ClockOffset = offset
		compensated = compensated.Add(offset)
	}
	result.AverageRTT = averageRTT
	result.Compensated = compensated

	logger := c.logger.With("target", fmt.Sprintf("%#x", id))
	sentAt := c.clock.Now()
	if !compensated.After(sentAt) {
		c.metrics.MoveCompleted(metrics.MoveTimeout)
		return result, fmt.Errorf("%w: execution instant %s already passed", ErrCommandTimeout, compensated.Format(time.RFC3339Nano))
	}

	err := c.send(wire.MoveRequest{
		TargetDeviceID: id,
		Azimuth:        azimuth,
		Elevation:      elevation,
		MoveAt:         wire.InstantOf(compensated),
	})
	if err != nil {
		return result, err
	}
	logger.Info("move sent",
		"azimuth", azimuth,
		"elevation", elevation,
		"desired", desired,
		"compensated", compensated,
		"average_rtt", averageRTT,
	)

	envelope, err := c.await(ctx, wire.CommandMoveResponse, compensated.Add(c.config.ResponseTimeout), func(envelope Envelope) bool {
		response, ok := envelope.Packet.Payload.(wire.MoveResponse)
		return ok && envelope.Packet.DeviceID == id && response.TargetDeviceID == id &&
			!envelope.ReceivedAt.Before(sentAt)
	})
	if err != nil {
		if errors.Is(err, ErrCommandTimeout) {
			c.metrics.MoveCompleted(metrics.MoveTimeout)
			logger.Warn("move timed out")
		}
		return result, err
	}

	result.RespondedAt = envelope.ReceivedAt
	if response := envelope.Packet.Payload.(wire.MoveResponse); !response.OK {
		c.metrics.MoveCompleted(metrics.MoveRejected)
		logger.Warn("move rejected")
		return result, fmt.Errorf("%w: %#x", ErrMoveRejected, id)
	}
	c.metrics.MoveCompleted(metrics.MoveOK)
	logger.Info("move acknowledged", "responded_at", envelope.ReceivedAt)
	return result, nil
}

// Status asks device id for its pointing and position.
func (c *Coordinator) Status(ctx context.Context, id uint32) (DeviceStatus, error) {
	if err := c.requireOnline(id); err != nil {
		return DeviceStatus{}, err
	}
	sentAt := c.clock.Now()
	if err := c.send(wire.StatusRequest{TargetDeviceID: id}); err != nil {
		return DeviceStatus{}, err
	}
	envelope, err := c.await(ctx, wire.CommandStatusResponse, sentAt.Add(c.config.ResponseTimeout), func(envelope Envelope) bool {
		return envelope.Packet.DeviceID == id && !envelope.ReceivedAt.Before(sentAt)
	})
	if err != nil {
		return DeviceStatus{}, err
	}
	response := envelope.Packet.Payload.(wire.StatusResponse)
	return DeviceStatus{
		DeviceID:      id,
		Azimuth:       response.Azimuth,
		Elevation:     response.Elevation,
		Latitude:      response.Latitude,
		Longitude:     response.Longitude,
		PositionValid: response.PositionValid,
		RTT:           envelope.ReceivedAt.Sub(sentAt),
	}, nil
}

// Probe runs one ping exchange with device id and records the
// estimated clock offset, received_at - (sent_at + rtt/2), in the
// tracker.
func (c *Coordinator) Probe(ctx context.Context, id uint32) (ProbeResult, error) {
	if err := c.requireOnline(id); err != nil {
		return ProbeResult{}, err
	}
	sentAt := c.clock.Now()
	stamp := wire.InstantOf(sentAt)
	if err := c.send(wire.PingRequest{TargetDeviceID: id, SentAt: stamp}); err != nil {
		return ProbeResult{}, err
	}
	envelope, err := c.await(ctx, wire.CommandPingResponse, sentAt.Add(c.config.ResponseTimeout), func(envelope Envelope) bool {
		response := envelope.Packet.Payload.(wire.PingResponse)
		return envelope.Packet.DeviceID == id && response.SentAt == stamp
	})
	if err != nil {
		return ProbeResult{}, err
	}

	response := envelope.Packet.Payload.(wire.PingResponse)
	rtt := envelope.ReceivedAt.Sub(sentAt)
	offset := response.ReceivedAt.Time().Sub(sentAt.Add(rtt / 2))
	if err := c.tracker.RecordClockOffset(id, offset); err != nil {
		return ProbeResult{}, err
	}
	c.logger.Debug("probe complete", "target", fmt.Sprintf("%#x", id), "rtt", rtt, "offset", offset)
	return ProbeResult{DeviceID: id, RTT: rtt, Offset: offset}, nil
}

// RunHeartbeats runs a heartbeat round every interval until ctx is
// cancelled. Each round collects responses for maxWait, which should
// be shorter than interval. Send failures are logged and retried on the
// next tick.
func (c *Coordinator) RunHeartbeats(ctx context.Context, interval, maxWait time.Duration) error {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.HeartbeatRound(ctx, maxWait); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("heartbeat round failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
