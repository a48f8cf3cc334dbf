// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness turns heartbeat responses into an online/offline
// view of the fleet and keeps the round-trip statistics the leader
// uses to compensate move timing.
//
// A device's record is created by its first response and refreshed by
// every later one. Records are never removed: a device that stops
// answering simply ages past the offline threshold.
package liveness

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/antenny/fleet/lib/clock"
)

const (
	// DefaultOfflineThreshold is how long after its last response a
	// device is still considered online.
	DefaultOfflineThreshold = 10 * time.Second

	// DefaultRTTWindow is how many recent round-trip samples are
	// averaged per device.
	DefaultRTTWindow = 32
)

// ErrUnknownDevice is returned for queries about a device that has
// never answered a heartbeat.
var ErrUnknownDevice = errors.New("unknown device")

// Config tunes a Tracker. Zero fields take the defaults above.
type Config struct {
	OfflineThreshold time.Duration
	RTTWindow        int
}

func (c Config) withDefaults() Config {
	if c.OfflineThreshold <= 0 {
		c.OfflineThreshold = DefaultOfflineThreshold
	}
	if c.RTTWindow <= 0 {
		c.RTTWindow = DefaultRTTWindow
	}
	return c
}

// Record is a point-in-time copy of one device's liveness state.
type Record struct {
	DeviceID  uint32
	FirstSeen time.Time
	LastSeen  time.Time

	// Online is computed against the tracker's threshold when the
	// record is copied out.
	Online bool

	// Samples holds the retained round-trip times, oldest first.
	Samples []time.Duration

	// SampleCount counts every response ever recorded, including
	// samples that have left the window.
	SampleCount int

	// AverageRTT is the mean of Samples.
	AverageRTT time.Duration

	// ClockOffset is the mean estimated offset of the device clock
	// from the leader clock (positive means the device runs ahead).
	// Meaningful only when OffsetSamples > 0.
	ClockOffset   time.Duration
	OffsetSamples int
}

type device struct {
	id          uint32
	firstSeen   time.Time
	lastSeen    time.Time
	rtt         *sampleRing
	sampleCount int
	offsets     *sampleRing
}

// Tracker is safe for concurrent use. Each mutation of a device record
// happens under the tracker lock, so concurrent drains of heartbeat
// responses cannot interleave partial updates.
type Tracker struct {
	config Config
	clock  clock.Clock

	mu      sync.RWMutex
	devices map[uint32]*device
}

// New creates an empty Tracker.
func New(config Config, clk clock.Clock) *Tracker {
	return &Tracker{
		config:  config.withDefaults(),
		clock:   clk,
		devices: make(map[uint32]*device),
	}
}

// OfflineThreshold returns the configured freshness bound.
func (t *Tracker) OfflineThreshold() time.Duration { return t.config.OfflineThreshold }

// RecordResponse notes a heartbeat response from id observed rtt after
// the request was sent. Negative round trips (clock steps) are recorded
// as zero.
func (t *Tracker) RecordResponse(id uint32, rtt time.Duration) {
	if rtt < 0 {
		rtt = 0
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.devices[id]
	if !ok {
		record = &device{
			id:        id,
			firstSeen: now,
			rtt:       newSampleRing(t.config.RTTWindow),
			offsets:   newSampleRing(t.config.RTTWindow),
		}
		t.devices[id] = record
	}
	record.lastSeen = now
	record.rtt.add(rtt)
	record.sampleCount++
}

// RecordClockOffset adds a clock-offset estimate for a known device.
func (t *Tracker) RecordClockOffset(id uint32, offset time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.devices[id]
	if !ok {
		return fmt.Errorf("device %d: %w", id, ErrUnknownDevice)
	}
	record.offsets.add(offset)
	return nil
}

// IsOnline reports whether id answered within the configured threshold.
func (t *Tracker) IsOnline(id uint32) (bool, error) {
	return t.IsOnlineWithin(id, t.config.OfflineThreshold)
}

// IsOnlineWithin reports whether now - last_seen < threshold. A device
// exactly threshold old is offline.
func (t *Tracker) IsOnlineWithin(id uint32, threshold time.Duration) (bool, error) {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.devices[id]
	if !ok {
		return false, fmt.Errorf("device %d: %w", id, ErrUnknownDevice)
	}
	return now.Sub(record.lastSeen) < threshold, nil
}

// AverageRTT returns the mean of the retained round-trip samples.
func (t *Tracker) AverageRTT(id uint32) (time.Duration, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.devices[id]
	if !ok {
		return 0, fmt.Errorf("device %d: %w", id, ErrUnknownDevice)
	}
	return record.rtt.mean(), nil
}

// ClockOffset returns the mean clock-offset estimate, or zero when the
// device has never been probed.
func (t *Tracker) ClockOffset(id uint32) (time.Duration, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.devices[id]
	if !ok {
		return 0, fmt.Errorf("device %d: %w", id, ErrUnknownDevice)
	}
	return record.offsets.mean(), nil
}

// Known reports whether id has ever answered.
func (t *Tracker) Known(id uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.devices[id]
	return ok
}

// Lookup returns a copy of id's record.
func (t *Tracker) Lookup(id uint32) (Record, bool) {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.devices[id]
	if !ok {
		return Record{}, false
	}
	return t.copyRecord(record, now), true
}

// Snapshot returns copies of every record, ordered by device id.
func (t *Tracker) Snapshot() []Record {
	now := t.clock.Now()

	t.mu.RLock()
	records := make([]Record, 0, len(t.devices))
	for _, record := range t.devices {
		records = append(records, t.copyRecord(record, now))
	}
	t.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].DeviceID < records[j].DeviceID })
	return records
}

// Caller must hold t.mu.
func (t *Tracker) copyRecord(record *device, now time.Time) Record {
	return Record{
		DeviceID:      record.id,
		FirstSeen:     record.firstSeen,
		LastSeen:      record.lastSeen,
		Online:        now.Sub(record.lastSeen) < t.config.OfflineThreshold,
		Samples:       record.rtt.snapshot(),
		SampleCount:   record.sampleCount,
		AverageRTT:    record.rtt.mean(),
		ClockOffset:   record.offsets.mean(),
		OffsetSamples: record.offsets.len(),
	}
}
