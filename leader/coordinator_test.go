// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package leader

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/metrics"
	"github.com/antenny/fleet/lib/testutil"
	"github.com/antenny/fleet/lib/wire"
	"github.com/antenny/fleet/transport"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	leaderID     = 0xA0
	testChannel  = 0xBEEF
	followerID   = 0x01
	otherChannel = 0xCAFE
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// peer is a scripted follower speaking raw frames on the network.
type peer struct {
	t        *testing.T
	endpoint *transport.MemoryEndpoint
	id       uint32
	channel  uint32
}

func newPeer(t *testing.T, network *transport.MemoryNetwork, id uint32) *peer {
	t.Helper()
	endpoint := network.Endpoint(testutil.UniqueID("peer"))
	t.Cleanup(func() { endpoint.Close() })
	return &peer{t: t, endpoint: endpoint, id: id, channel: testChannel}
}

// expect returns the next packet of commandType sent by the leader,
// skipping our own echoes and anything else.
func (p *peer) expect(commandType wire.CommandType) wire.Packet {
	p.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		datagram, ok := p.endpoint.Receive(10 * time.Millisecond)
		if !ok {
			continue
		}
		packet, err := wire.Decode(datagram.Data)
		if err != nil {
			p.t.Fatalf("peer received undecodable frame: %v", err)
		}
		if packet.DeviceID == leaderID && packet.Payload.Type() == commandType {
			return packet
		}
	}
	p.t.Fatalf("peer %#x never received %s", p.id, commandType)
	return wire.Packet{}
}

func (p *peer) reply(payload wire.Payload) {
	p.t.Helper()
	frame, err := wire.Encode(wire.Packet{DeviceID: p.id, Channel: p.channel, Payload: payload})
	if err != nil {
		p.t.Fatalf("encoding %s: %v", payload.Type(), err)
	}
	if err := p.endpoint.Send(frame); err != nil {
		p.t.Fatalf("sending %s: %v", payload.Type(), err)
	}
}

type harness struct {
	clock       clock.Clock
	network     *transport.MemoryNetwork
	endpoint    *transport.MemoryEndpoint
	coordinator *Coordinator
}

func newHarness(t *testing.T, clk clock.Clock, config Config) *harness {
	t.Helper()
	network := transport.NewMemoryNetwork(clk)
	endpoint := network.Endpoint("leader")
	config.DeviceID = leaderID
	config.Channel = testChannel
	coordinator := New(config, endpoint, clk, discardLogger())
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		coordinator.Stop()
		endpoint.Close()
	})
	return &harness{clock: clk, network: network, endpoint: endpoint, coordinator: coordinator}
}

type moveOutcome struct {
	result MoveResult
	err    error
}

func (h *harness) moveAsync(id uint32, azimuth, elevation float64, desired time.Time) <-chan moveOutcome {
	done := make(chan moveOutcome, 1)
	go func() {
		result, err := h.coordinator.Move(context.Background(), id, azimuth, elevation, desired)
		done <- moveOutcome{result, err}
	}()
	return done
}

func TestHeartbeatRoundMeasuresRTT(t *testing.T) {
	fake := clock.Fake(epoch)
	fleetMetrics := metrics.New()
	h := newHarness(t, fake, Config{Metrics: fleetMetrics})
	follower := newPeer(t, h.network, followerID)

	type roundOutcome struct {
		ids []uint32
		err error
	}
	done := make(chan roundOutcome, 1)
	go func() {
		ids, err := h.coordinator.HeartbeatRound(context.Background(), time.Second)
		done <- roundOutcome{ids, err}
	}()

	follower.expect(wire.CommandHeartbeatRequest)
	fake.WaitForTimers(1)
	fake.Advance(40 * time.Millisecond)
	follower.reply(wire.HeartbeatResponse{})

	tracker := h.coordinator.Tracker()
	testutil.Eventually(t, 5*time.Second, func() bool { return tracker.Known(followerID) }, "response recorded")
	fake.Advance(time.Second)

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "heartbeat round")
	if outcome.err != nil {
		t.Fatalf("HeartbeatRound() error: %v", outcome.err)
	}
	if len(outcome.ids) != 1 || outcome.ids[0] != followerID {
		t.Errorf("HeartbeatRound() = %v, want [0x1]", outcome.ids)
	}
	if rtt, _ := tracker.AverageRTT(followerID); rtt != 40*time.Millisecond {
		t.Errorf("AverageRTT() = %v, want 40ms", rtt)
	}

	expected := `
# HELP antenny_devices_online Devices that answered within the offline threshold.
# TYPE antenny_devices_online gauge
antenny_devices_online 1
# HELP antenny_device_rtt_seconds Mean heartbeat round-trip time over the retained window.
# TYPE antenny_device_rtt_seconds gauge
antenny_device_rtt_seconds{device="0x1"} 0.04
# HELP antenny_heartbeat_rounds_total Heartbeat requests broadcast by the leader.
# TYPE antenny_heartbeat_rounds_total counter
antenny_heartbeat_rounds_total 1
`
	err := promtestutil.GatherAndCompare(fleetMetrics.Registry(), strings.NewReader(expected),
		"antenny_devices_online", "antenny_device_rtt_seconds", "antenny_heartbeat_rounds_total")
	if err != nil {
		t.Errorf("metrics mismatch: %v", err)
	}
}

func TestHeartbeatRoundDiscardsStaleResponses(t *testing.T) {
	fake := clock.Fake(epoch)
	h := newHarness(t, fake, Config{})
	follower := newPeer(t, h.network, followerID)

	// A response left over from an earlier round.
	follower.reply(wire.HeartbeatResponse{})
	router := h.coordinator.Router()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return router.Len(wire.CommandHeartbeatResponse) == 1
	}, "stale response queued")
	fake.Advance(10 * time.Millisecond)

	done := make(chan []uint32, 1)
	go func() {
		ids, _ := h.coordinator.HeartbeatRound(context.Background(), 100*time.Millisecond)
		done <- ids
	}()
	fake.WaitForTimers(1)
	fake.Advance(100 * time.Millisecond)

	ids := testutil.RequireReceive(t, done, 5*time.Second, "heartbeat round")
	if len(ids) != 0 {
		t.Errorf("HeartbeatRound() = %v, want no responders", ids)
	}
	if h.coordinator.Tracker().Known(followerID) {
		t.Error("stale response created a liveness record")
	}
}

func TestCoordinatorIgnoresOtherChannelsAndOwnID(t *testing.T) {
	h := newHarness(t, clock.Real(), Config{})
	foreign := newPeer(t, h.network, followerID)
	foreign.channel = otherChannel
	impostor := newPeer(t, h.network, leaderID)

	done := make(chan []uint32, 1)
	go func() {
		ids, _ := h.coordinator.HeartbeatRound(context.Background(), 100*time.Millisecond)
		done <- ids
	}()
	foreign.expect(wire.CommandHeartbeatRequest)
	foreign.reply(wire.HeartbeatResponse{})
	impostor.reply(wire.HeartbeatResponse{})

	ids := testutil.RequireReceive(t, done, 5*time.Second, "heartbeat round")
	if len(ids) != 0 {
		t.Errorf("HeartbeatRound() = %v, want no responders", ids)
	}
}

func TestMoveCompensatesHalfMeanRTT(t *testing.T) {
	fake := clock.Fake(epoch)
	h := newHarness(t, fake, Config{})
	follower := newPeer(t, h.network, followerID)

	tracker := h.coordinator.Tracker()
	tracker.RecordResponse(followerID, 100*time.Millisecond)
	tracker.RecordResponse(followerID, 300*time.Millisecond)

	desired := epoch.Add(2 * time.Second)
	done := h.moveAsync(followerID, 90, 45, desired)

	request := follower.expect(wire.CommandMoveRequest).Payload.(wire.MoveRequest)
	want := wire.InstantOf(desired.Add(-100 * time.Millisecond))
	if request.MoveAt != want {
		t.Errorf("MoveAt = %v, want %v", request.MoveAt, want)
	}
	if request.TargetDeviceID != followerID || request.Azimuth != 90 || request.Elevation != 45 {
		t.Errorf("MoveRequest = %+v, want target 0x1 az 90 el 45", request)
	}
	follower.reply(wire.MoveResponse{TargetDeviceID: followerID, OK: true})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "move result")
	if outcome.err != nil {
		t.Fatalf("Move() error: %v", outcome.err)
	}
	if outcome.result.AverageRTT != 200*time.Millisecond {
		t.Errorf("AverageRTT = %v, want 200ms", outcome.result.AverageRTT)
	}
	if !outcome.result.Compensated.Equal(desired.Add(-100 * time.Millisecond)) {
		t.Errorf("Compensated = %v, want desired - 100ms", outcome.result.Compensated)
	}
}

func TestMoveUnreachableSendsNothing(t *testing.T) {
	fleetMetrics := metrics.New()
	h := newHarness(t, clock.Fake(epoch), Config{Metrics: fleetMetrics})

	_, err := h.coordinator.Move(context.Background(), 0x99, 10, 10, epoch.Add(time.Second))
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("Move() error = %v, want ErrDeviceUnreachable", err)
	}
	if sent := h.endpoint.Sent(); sent != 0 {
		t.Errorf("leader sent %d datagrams, want 0", sent)
	}

	expected := `
# HELP antenny_moves_total Leader move commands by outcome.
# TYPE antenny_moves_total counter
antenny_moves_total{result="unreachable"} 1
`
	if err := promtestutil.GatherAndCompare(fleetMetrics.Registry(), strings.NewReader(expected), "antenny_moves_total"); err != nil {
		t.Errorf("metrics mismatch: %v", err)
	}
}

func TestMoveToSilentDeviceIsUnreachable(t *testing.T) {
	fake := clock.Fake(epoch)
	h := newHarness(t, fake, Config{OfflineThreshold: time.Second})
	h.coordinator.Tracker().RecordResponse(followerID, time.Millisecond)
	fake.Advance(2 * time.Second)

	_, err := h.coordinator.Move(context.Background(), followerID, 10, 10, fake.Now().Add(time.Second))
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("Move() error = %v, want ErrDeviceUnreachable", err)
	}
	if sent := h.endpoint.Sent(); sent != 0 {
		t.Errorf("leader sent %d datagrams, want 0", sent)
	}
}

func TestMoveInThePastTimesOutWithoutSending(t *testing.T) {
	h := newHarness(t, clock.Fake(epoch), Config{})
	h.coordinator.Tracker().RecordResponse(followerID, 10*time.Millisecond)

	_, err := h.coordinator.Move(context.Background(), followerID, 10, 10, epoch)
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("Move() error = %v, want ErrCommandTimeout", err)
	}
	if sent := h.endpoint.Sent(); sent != 0 {
		t.Errorf("leader sent %d datagrams, want 0", sent)
	}
}

func TestMoveTimesOutAfterResponseTimeout(t *testing.T) {
	fake := clock.Fake(epoch)
	h := newHarness(t, fake, Config{ResponseTimeout: 3 * time.Second})
	follower := newPeer(t, h.network, followerID)
	h.coordinator.Tracker().RecordResponse(followerID, 0)

	done := h.moveAsync(followerID, 10, 10, epoch.Add(2*time.Second))
	follower.expect(wire.CommandMoveRequest)
	fake.WaitForTimers(1)

	fake.Advance(4 * time.Second)
	select {
	case outcome := <-done:
		t.Fatalf("Move() returned %v before instant + timeout", outcome.err)
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(time.Second)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "move result")
	if !errors.Is(outcome.err, ErrCommandTimeout) {
		t.Errorf("Move() error = %v, want ErrCommandTimeout", outcome.err)
	}
}

func TestMoveRejected(t *testing.T) {
	h := newHarness(t, clock.Fake(epoch), Config{})
	follower := newPeer(t, h.network, followerID)
	h.coordinator.Tracker().RecordResponse(followerID, 0)

	done := h.moveAsync(followerID, 500, 10, epoch.Add(time.Second))
	follower.expect(wire.CommandMoveRequest)
	follower.reply(wire.MoveResponse{TargetDeviceID: followerID, OK: false})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "move result")
	if !errors.Is(outcome.err, ErrMoveRejected) {
		t.Errorf("Move() error = %v, want ErrMoveRejected", outcome.err)
	}
}

func TestMoveIgnoresResponsesFromOtherDevices(t *testing.T) {
	h := newHarness(t, clock.Fake(epoch), Config{})
	follower := newPeer(t, h.network, followerID)
	bystander := newPeer(t, h.network, 0x02)
	h.coordinator.Tracker().RecordResponse(followerID, 0)

	done := h.moveAsync(followerID, 10, 10, epoch.Add(time.Second))
	follower.expect(wire.CommandMoveRequest)
	bystander.reply(wire.MoveResponse{TargetDeviceID: 0x02, OK: false})

	router := h.coordinator.Router()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return router.Len(wire.CommandMoveResponse) == 1
	}, "bystander response queued")
	follower.reply(wire.MoveResponse{TargetDeviceID: followerID, OK: true})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "move result")
	if outcome.err != nil {
		t.Fatalf("Move() error: %v", outcome.err)
	}
	if got := router.Len(wire.CommandMoveResponse); got != 1 {
		t.Errorf("bystander response was consumed; queue length %d, want 1", got)
	}
}

func TestProbeEstimatesClockOffset(t *testing.T) {
	fake := clock.Fake(epoch)
	h := newHarness(t, fake, Config{CompensateClockOffset: true})
	follower := newPeer(t, h.network, followerID)
	tracker := h.coordinator.Tracker()
	tracker.RecordResponse(followerID, 0)

	type probeOutcome struct {
		result ProbeResult
		err    error
	}
	done := make(chan probeOutcome, 1)
	go func() {
		result, err := h.coordinator.Probe(context.Background(), followerID)
		done <- probeOutcome{result, err}
	}()

	ping := follower.expect(wire.CommandPingRequest).Payload.(wire.PingRequest)
	if ping.SentAt != wire.InstantOf(epoch) {
		t.Errorf("PingRequest.SentAt = %v, want %v", ping.SentAt, wire.InstantOf(epoch))
	}
	// The follower's clock runs five seconds ahead.
	follower.reply(wire.PingResponse{
		TargetDeviceID: followerID,
		SentAt:         ping.SentAt,
		ReceivedAt:     wire.InstantOf(epoch.Add(5 * time.Second)),
	})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "probe result")
	if outcome.err != nil {
		t.Fatalf("Probe() error: %v", outcome.err)
	}
	if outcome.result.Offset != 5*time.Second {
		t.Errorf("Offset = %v, want 5s", outcome.result.Offset)
	}
	if offset, _ := tracker.ClockOffset(followerID); offset != 5*time.Second {
		t.Errorf("tracker ClockOffset = %v, want 5s", offset)
	}

	desired := epoch.Add(time.Second)
	moveDone := h.moveAsync(followerID, 10, 20, desired)
	request := follower.expect(wire.CommandMoveRequest).Payload.(wire.MoveRequest)
	if want := wire.InstantOf(desired.Add(5 * time.Second)); request.MoveAt != want {
		t.Errorf("MoveAt = %v, want %v (offset applied)", request.MoveAt, want)
	}
	follower.reply(wire.MoveResponse{TargetDeviceID: followerID, OK: true})
	if outcome := testutil.RequireReceive(t, moveDone, 5*time.Second, "move result"); outcome.err != nil {
		t.Errorf("Move() error: %v", outcome.err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, clock.Fake(epoch), Config{})
	follower := newPeer(t, h.network, followerID)
	h.coordinator.Tracker().RecordResponse(followerID, 0)

	type statusOutcome struct {
		status DeviceStatus
		err    error
	}
	done := make(chan statusOutcome, 1)
	go func() {
		status, err := h.coordinator.Status(context.Background(), followerID)
		done <- statusOutcome{status, err}
	}()

	request := follower.expect(wire.CommandStatusRequest).Payload.(wire.StatusRequest)
	if request.TargetDeviceID != followerID {
		t.Errorf("StatusRequest target = %#x, want 0x1", request.TargetDeviceID)
	}
	follower.reply(wire.StatusResponse{
		TargetDeviceID: followerID,
		Azimuth:        90,
		Elevation:      45,
		Latitude:       47.6,
		Longitude:      -122.3,
		PositionValid:  true,
	})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "status result")
	if outcome.err != nil {
		t.Fatalf("Status() error: %v", outcome.err)
	}
	want := DeviceStatus{DeviceID: followerID, Azimuth: 90, Elevation: 45, Latitude: 47.6, Longitude: -122.3, PositionValid: true}
	if outcome.status != want {
		t.Errorf("Status() = %+v, want %+v", outcome.status, want)
	}
}

func TestMoveMatchesEmbeddedTarget(t *testing.T) {
	h := newHarness(t, clock.Fake(epoch), Config{})
	follower := newPeer(t, h.network, followerID)
	h.coordinator.Tracker().RecordResponse(followerID, 0)

	done := h.moveAsync(followerID, 10, 10, epoch.Add(time.Second))
	follower.expect(wire.CommandMoveRequest)
	follower.reply(wire.MoveResponse{TargetDeviceID: 0x02, OK: false})

	router := h.coordinator.Router()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return router.Len(wire.CommandMoveResponse) == 1
	}, "mismatched response queued")
	follower.reply(wire.MoveResponse{TargetDeviceID: followerID, OK: true})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "move result")
	if outcome.err != nil {
		t.Fatalf("Move() error: %v", outcome.err)
	}
	if got := router.Len(wire.CommandMoveResponse); got != 1 {
		t.Errorf("mismatched response was consumed; queue length %d, want 1", got)
	}
}

func TestWaitForOwnIDFailsImmediately(t *testing.T) {
	fake := clock.Fake(epoch)
	h := newHarness(t, fake, Config{})

	err := h.coordinator.WaitForDevices(context.Background(), []uint32{followerID, leaderID}, time.Minute)
	if !errors.Is(err, ErrOwnDevice) {
		t.Fatalf("WaitForDevices() error = %v, want ErrOwnDevice", err)
	}
	if pending := fake.PendingCount(); pending != 0 {
		t.Errorf("WaitForDevices armed %d timers before failing", pending)
	}
}

func TestWaitForDevices(t *testing.T) {
	h := newHarness(t, clock.Real(), Config{HeartbeatWait: 50 * time.Millisecond})
	follower := newPeer(t, h.network, followerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			datagram, ok := follower.endpoint.Receive(10 * time.Millisecond)
			if !ok {
				continue
			}
			packet, err := wire.Decode(datagram.Data)
			if err == nil && packet.DeviceID == leaderID && packet.Payload.Type() == wire.CommandHeartbeatRequest {
				frame, _ := wire.Encode(wire.Packet{DeviceID: followerID, Channel: testChannel, Payload: wire.HeartbeatResponse{}})
				follower.endpoint.Send(frame)
			}
		}
	}()

	if err := h.coordinator.WaitForDevices(ctx, []uint32{followerID}, 2*time.Second); err != nil {
		t.Fatalf("WaitForDevices(0x1) error: %v", err)
	}

	err := h.coordinator.WaitForDevices(ctx, []uint32{followerID, 0x02, 0x03}, 200*time.Millisecond)
	if !errors.Is(err, ErrDevicesUnreachable) {
		t.Fatalf("WaitForDevices() error = %v, want ErrDevicesUnreachable", err)
	}
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("error %T is not *UnreachableError", err)
	}
	if len(unreachable.Missing) != 2 || unreachable.Missing[0] != 0x02 || unreachable.Missing[1] != 0x03 {
		t.Errorf("Missing = %v, want [0x2 0x3]", unreachable.Missing)
	}
	if got := err.Error(); got != "devices unreachable: 0x2, 0x3" {
		t.Errorf("Error() = %q", got)
	}
}

func TestRunHeartbeatsStopsOnCancel(t *testing.T) {
	fake := clock.Fake(epoch)
	fleetMetrics := metrics.New()
	h := newHarness(t, fake, Config{Metrics: fleetMetrics})
	follower := newPeer(t, h.network, followerID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coordinator.RunHeartbeats(ctx, time.Second, 100*time.Millisecond) }()

	follower.expect(wire.CommandHeartbeatRequest)
	fake.WaitForTimers(2)
	fake.Advance(time.Second)
	follower.expect(wire.CommandHeartbeatRequest)

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "RunHeartbeats exit"); err != nil {
		t.Errorf("RunHeartbeats() = %v, want nil after cancel", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, clock.Real(), Config{})
	h.coordinator.Stop()
	h.coordinator.Stop()
}
