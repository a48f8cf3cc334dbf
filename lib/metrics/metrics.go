// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes fleet instrumentation in Prometheus format.
//
// A [Fleet] owns its own registry, so tests can create as many as they
// like without colliding on the global default registerer. Every
// recording method accepts a nil receiver and does nothing, so
// components built without metrics need no conditionals.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for PacketDropped.
const (
	DropMalformed     = "malformed"
	DropUnknown       = "unknown"
	DropChannel       = "channel"
	DropForeignTarget = "foreign_target"
)

// Leader move outcomes for MoveCompleted.
const (
	MoveOK          = "ok"
	MoveRejected    = "rejected"
	MoveTimeout     = "timeout"
	MoveUnreachable = "unreachable"
)

// Follower move outcomes for FollowerMove.
const (
	FollowerExecuted = "executed"
	FollowerFailed   = "failed"
	FollowerLate     = "late"
)

// Fleet holds the collectors shared by leader and follower processes.
type Fleet struct {
	registry *prometheus.Registry

	heartbeatRounds prometheus.Counter
	devicesOnline   prometheus.Gauge
	deviceRTT       *prometheus.GaugeVec
	moves           *prometheus.CounterVec
	followerMoves   *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
}

// New creates a Fleet with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Fleet {
	fleet := &Fleet{
		registry: prometheus.NewRegistry(),
		heartbeatRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "antenny",
			Name:      "heartbeat_rounds_total",
			Help:      "Heartbeat requests broadcast by the leader.",
		}),
		devicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "antenny",
			Name:      "devices_online",
			Help:      "Devices that answered within the offline threshold.",
		}),
		deviceRTT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "antenny",
			Name:      "device_rtt_seconds",
			Help:      "Mean heartbeat round-trip time over the retained window.",
		}, []string{"device"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antenny",
			Name:      "moves_total",
			Help:      "Leader move commands by outcome.",
		}, []string{"result"}),
		followerMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antenny",
			Name:      "follower_moves_total",
			Help:      "Move requests handled by this follower by outcome.",
		}, []string{"result"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antenny",
			Name:      "packets_dropped_total",
			Help:      "Received datagrams discarded before dispatch.",
		}, []string{"reason"}),
	}
	fleet.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		fleet.heartbeatRounds,
		fleet.devicesOnline,
		fleet.deviceRTT,
		fleet.moves,
		fleet.followerMoves,
		fleet.packetsDropped,
	)
	return fleet
}

// Registry returns the underlying registry, for tests and for callers
// that add their own collectors.
func (f *Fleet) Registry() *prometheus.Registry { return f.registry }

// Handler serves the registry in the Prometheus exposition format.
func (f *Fleet) Handler() http.Handler {
	return promhttp.HandlerFor(f.registry, promhttp.HandlerOpts{Registry: f.registry})
}

// HeartbeatRound counts one broadcast heartbeat.
func (f *Fleet) HeartbeatRound() {
	if f == nil {
		return
	}
	f.heartbeatRounds.Inc()
}

// DevicesOnline sets the online device count.
func (f *Fleet) DevicesOnline(count int) {
	if f == nil {
		return
	}
	f.devicesOnline.Set(float64(count))
}

// DeviceRTT records the current mean round trip for device.
func (f *Fleet) DeviceRTT(device uint32, rtt time.Duration) {
	if f == nil {
		return
	}
	f.deviceRTT.WithLabelValues(deviceLabel(device)).Set(rtt.Seconds())
}

// MoveCompleted counts a leader move by outcome.
func (f *Fleet) MoveCompleted(result string) {
	if f == nil {
		return
	}
	f.moves.WithLabelValues(result).Inc()
}

// FollowerMove counts a follower move by outcome.
func (f *Fleet) FollowerMove(result string) {
	if f == nil {
		return
	}
	f.followerMoves.WithLabelValues(result).Inc()
}

// PacketDropped counts a discarded datagram.
func (f *Fleet) PacketDropped(reason string) {
	if f == nil {
		return
	}
	f.packetsDropped.WithLabelValues(reason).Inc()
}

func deviceLabel(device uint32) string {
	return "0x" + strconv.FormatUint(uint64(device), 16)
}
