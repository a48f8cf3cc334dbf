// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antenny/fleet/follower"
	"github.com/antenny/fleet/leader"
	"github.com/antenny/fleet/lib/liveness"
)

// Leader actions.
const (
	ActionFleet     = "fleet"
	ActionMove      = "move"
	ActionStatus    = "status"
	ActionWait      = "wait"
	ActionHeartbeat = "heartbeat"
	ActionProbe     = "probe"
)

// Follower actions. The follower also answers ActionStatus with a
// LocalStatus.
const (
	ActionLeaders = "leaders"
	ActionFollow  = "follow"
)

// ActionVersion is answered by both daemons.
const ActionVersion = "version"

// DeviceRequest names one device. Used by status and probe.
type DeviceRequest struct {
	Device uint32 `json:"device"`
}

// MoveRequest schedules a move. At is the desired instant; when it is
// zero, the move is scheduled Delay after the leader receives the
// request.
type MoveRequest struct {
	Device    uint32        `json:"device"`
	Azimuth   float64       `json:"azimuth"`
	Elevation float64       `json:"elevation"`
	At        time.Time     `json:"at"`
	Delay     time.Duration `json:"delay"`
}

// Desired resolves the request's instant against now.
func (r MoveRequest) Desired(now time.Time) (time.Time, error) {
	if !r.At.IsZero() {
		return r.At, nil
	}
	if r.Delay <= 0 {
		return time.Time{}, fmt.Errorf("move needs a future instant: set at or a positive delay")
	}
	return now.Add(r.Delay), nil
}

// WaitRequest waits for every listed device to answer a heartbeat.
type WaitRequest struct {
	Devices []uint32      `json:"devices"`
	Timeout time.Duration `json:"timeout"`
}

// HeartbeatRequest runs one heartbeat round. Zero Wait takes the
// leader's configured wait.
type HeartbeatRequest struct {
	Wait time.Duration `json:"wait"`
}

// FollowRequest switches the followed leader.
type FollowRequest struct {
	Leader uint32 `json:"leader"`
}

// DeviceRecord is one row of the leader's fleet view.
type DeviceRecord struct {
	Device      uint32        `json:"device"`
	Online      bool          `json:"online"`
	FirstSeen   time.Time     `json:"first_seen"`
	LastSeen    time.Time     `json:"last_seen"`
	AverageRTT  time.Duration `json:"average_rtt"`
	Samples     int           `json:"samples"`
	ClockOffset time.Duration `json:"clock_offset"`
	HasOffset   bool          `json:"has_offset"`
}

// DeviceRecordOf converts a tracker record.
func DeviceRecordOf(record liveness.Record) DeviceRecord {
	return DeviceRecord{
		Device:      record.DeviceID,
		Online:      record.Online,
		FirstSeen:   record.FirstSeen,
		LastSeen:    record.LastSeen,
		AverageRTT:  record.AverageRTT,
		Samples:     record.SampleCount,
		ClockOffset: record.ClockOffset,
		HasOffset:   record.OffsetSamples > 0,
	}
}

// MoveResult reports a confirmed move.
type MoveResult struct {
	Device      uint32        `json:"device"`
	Azimuth     float64       `json:"azimuth"`
	Elevation   float64       `json:"elevation"`
	Desired     time.Time     `json:"desired"`
	Compensated time.Time     `json:"compensated"`
	AverageRTT  time.Duration `json:"average_rtt"`
	ClockOffset time.Duration `json:"clock_offset"`
	RespondedAt time.Time     `json:"responded_at"`
}

// MoveResultOf converts a coordinator result.
func MoveResultOf(result leader.MoveResult) MoveResult {
	return MoveResult{
		Device:      result.DeviceID,
		Azimuth:     result.Azimuth,
		Elevation:   result.Elevation,
		Desired:     result.Desired,
		Compensated: result.Compensated,
		AverageRTT:  result.AverageRTT,
		ClockOffset: result.ClockOffset,
		RespondedAt: result.RespondedAt,
	}
}

// DeviceStatus is a follower's pointing and position as reported to
// the leader.
type DeviceStatus struct {
	Device        uint32        `json:"device"`
	Azimuth       float64       `json:"azimuth"`
	Elevation     float64       `json:"elevation"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	PositionValid bool          `json:"position_valid"`
	RTT           time.Duration `json:"rtt"`
}

// DeviceStatusOf converts a coordinator status.
func DeviceStatusOf(status leader.DeviceStatus) DeviceStatus {
	return DeviceStatus{
		Device:        status.DeviceID,
		Azimuth:       status.Azimuth,
		Elevation:     status.Elevation,
		Latitude:      status.Latitude,
		Longitude:     status.Longitude,
		PositionValid: status.PositionValid,
		RTT:           status.RTT,
	}
}

// ProbeResult is one ping exchange.
type ProbeResult struct {
	Device uint32        `json:"device"`
	RTT    time.Duration `json:"rtt"`
	Offset time.Duration `json:"offset"`
}

// ProbeResultOf converts a coordinator probe.
func ProbeResultOf(result leader.ProbeResult) ProbeResult {
	return ProbeResult{Device: result.DeviceID, RTT: result.RTT, Offset: result.Offset}
}

// DeviceList answers heartbeat and wait.
type DeviceList struct {
	Devices []uint32 `json:"devices"`
}

// LocalStatus is the follower daemon's view of itself.
type LocalStatus struct {
	Device        uint32  `json:"device"`
	Channel       uint32  `json:"channel"`
	Leader        uint32  `json:"leader"`
	Following     bool    `json:"following"`
	Azimuth       float64 `json:"azimuth"`
	Elevation     float64 `json:"elevation"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	PositionValid bool    `json:"position_valid"`
}

// Leader is a leader discovered by a follower.
type Leader struct {
	Device     uint32    `json:"device"`
	Source     string    `json:"source"`
	FirstHeard time.Time `json:"first_heard"`
	LastHeard  time.Time `json:"last_heard"`
	Heartbeats uint64    `json:"heartbeats"`
	Followed   bool      `json:"followed"`
}

// LeadersOf converts the follower's discovery cache, marking the
// followed leader.
func LeadersOf(discovered []follower.DiscoveredLeader, followed uint32, following bool) []Leader {
	leaders := make([]Leader, 0, len(discovered))
	for _, entry := range discovered {
		leaders = append(leaders, Leader{
			Device:     entry.DeviceID,
			Source:     entry.Source,
			FirstHeard: entry.FirstHeard,
			LastHeard:  entry.LastHeard,
			Heartbeats: entry.Heartbeats,
			Followed:   following && entry.DeviceID == followed,
		})
	}
	return leaders
}

// FormatDevice renders a device id the way logs and tables show it.
func FormatDevice(id uint32) string {
	return fmt.Sprintf("%#x", id)
}

// ParseDevice parses a device id or channel written in decimal or with
// a 0x prefix.
func ParseDevice(s string) (uint32, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid device id %q: %w", s, err)
	}
	return uint32(value), nil
}

// ParseDevices parses each element with [ParseDevice].
func ParseDevices(values []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(values))
	for _, value := range values {
		id, err := ParseDevice(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
