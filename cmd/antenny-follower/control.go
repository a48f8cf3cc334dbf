// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/antenny/fleet/follower"
	"github.com/antenny/fleet/lib/control"
	"github.com/antenny/fleet/lib/service"
	"github.com/antenny/fleet/lib/version"
)

// controlHandlers serves the follower's control socket actions.
type controlHandlers struct {
	node     *follower.Node
	deviceID uint32
	channel  uint32
}

func (h *controlHandlers) register(server *service.SocketServer) {
	server.Handle(control.ActionStatus, h.status)
	server.Handle(control.ActionLeaders, h.leaders)
	server.Handle(control.ActionFollow, h.follow)
	server.Handle(control.ActionVersion, func(context.Context, []byte) (any, error) {
		return version.Current(), nil
	})
}

func (h *controlHandlers) status(context.Context, []byte) (any, error) {
	azimuth, elevation, err := h.node.Pointing()
	if err != nil {
		return nil, fmt.Errorf("reading pointing: %w", err)
	}
	leader, following := h.node.Following()
	status := control.LocalStatus{
		Device:    h.deviceID,
		Channel:   h.channel,
		Leader:    leader,
		Following: following,
		Azimuth:   azimuth,
		Elevation: elevation,
	}
	position, err := h.node.Position()
	if err != nil {
		return nil, fmt.Errorf("reading GPS: %w", err)
	}
	if position.Valid {
		status.Latitude = position.Latitude
		status.Longitude = position.Longitude
		status.PositionValid = true
	}
	return status, nil
}

func (h *controlHandlers) leaders(context.Context, []byte) (any, error) {
	followed, following := h.node.Following()
	return control.LeadersOf(h.node.Leaders(), followed, following), nil
}

func (h *controlHandlers) follow(_ context.Context, raw []byte) (any, error) {
	var request control.FollowRequest
	if err := service.DecodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.Leader == h.deviceID {
		return nil, fmt.Errorf("cannot follow this node's own id %#x", request.Leader)
	}
	h.node.Follow(request.Leader)
	return nil, nil
}
