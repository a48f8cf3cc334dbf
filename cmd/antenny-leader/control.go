// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"time"

	"github.com/antenny/fleet/leader"
	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/control"
	"github.com/antenny/fleet/lib/service"
	"github.com/antenny/fleet/lib/version"
)

// controlHandlers serves the leader's control socket actions.
type controlHandlers struct {
	coordinator   *leader.Coordinator
	clock         clock.Clock
	heartbeatWait time.Duration
	waitTimeout   time.Duration
}

func (h *controlHandlers) register(server *service.SocketServer) {
	server.Handle(control.ActionFleet, h.fleet)
	server.Handle(control.ActionMove, h.move)
	server.Handle(control.ActionStatus, h.status)
	server.Handle(control.ActionWait, h.wait)
	server.Handle(control.ActionHeartbeat, h.heartbeat)
	server.Handle(control.ActionProbe, h.probe)
	server.Handle(control.ActionVersion, func(context.Context, []byte) (any, error) {
		return version.Current(), nil
	})
}

func (h *controlHandlers) fleet(context.Context, []byte) (any, error) {
	records := h.coordinator.Tracker().Snapshot()
	devices := make([]control.DeviceRecord, 0, len(records))
	for _, record := range records {
		devices = append(devices, control.DeviceRecordOf(record))
	}
	return devices, nil
}

func (h *controlHandlers) move(ctx context.Context, raw []byte) (any, error) {
	var request control.MoveRequest
	if err := service.DecodeRequest(raw, &request); err != nil {
		return nil, err
	}
	desired, err := request.Desired(h.clock.Now())
	if err != nil {
		return nil, err
	}
	result, err := h.coordinator.Move(ctx, request.Device, request.Azimuth, request.Elevation, desired)
	if err != nil {
		return nil, err
	}
	return control.MoveResultOf(result), nil
}

func (h *controlHandlers) status(ctx context.Context, raw []byte) (any, error) {
	var request control.DeviceRequest
	if err := service.DecodeRequest(raw, &request); err != nil {
		return nil, err
	}
	status, err := h.coordinator.Status(ctx, request.Device)
	if err != nil {
		return nil, err
	}
	return control.DeviceStatusOf(status), nil
}

func (h *controlHandlers) wait(ctx context.Context, raw []byte) (any, error) {
	var request control.WaitRequest
	if err := service.DecodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if len(request.Devices) == 0 {
		return nil, errors.New("wait needs at least one device")
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = h.waitTimeout
	}
	if err := h.coordinator.WaitForDevices(ctx, request.Devices, timeout); err != nil {
		return nil, err
	}
	return control.DeviceList{Devices: request.Devices}, nil
}

func (h *controlHandlers) heartbeat(ctx context.Context, raw []byte) (any, error) {
	var request control.HeartbeatRequest
	if err := service.DecodeRequest(raw, &request); err != nil {
		return nil, err
	}
	wait := request.Wait
	if wait <= 0 {
		wait = h.heartbeatWait
	}
	responders, err := h.coordinator.HeartbeatRound(ctx, wait)
	if err != nil {
		return nil, err
	}
	return control.DeviceList{Devices: responders}, nil
}

func (h *controlHandlers) probe(ctx context.Context, raw []byte) (any, error) {
	var request control.DeviceRequest
	if err := service.DecodeRequest(raw, &request); err != nil {
		return nil, err
	}
	result, err := h.coordinator.Probe(ctx, request.Device)
	if err != nil {
		return nil, err
	}
	return control.ProbeResultOf(result), nil
}
