// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform defines the hardware a follower drives: the
// antenna pointing controller and the GPS receiver. Drivers for real
// servos and receivers implement these interfaces outside this
// repository; [Simulated] and [FixedGPS] stand in for them on bench
// nodes and in tests.
package platform

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/antenny/fleet/lib/clock"
)

// Controller points the antenna. Angles are in degrees.
type Controller interface {
	SetAzimuth(degrees float64) error
	SetElevation(degrees float64) error
	Azimuth() (float64, error)
	Elevation() (float64, error)
}

// GPS reports the receiver's current fix.
type GPS interface {
	Status() (GPSStatus, error)
}

// GPSStatus is one GPS reading. Position fields are meaningless unless
// Valid.
type GPSStatus struct {
	Valid     bool
	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed     float64
}

// Limits bounds the angles a Simulated controller accepts.
type Limits struct {
	MinAzimuth, MaxAzimuth     float64
	MinElevation, MaxElevation float64
}

// DefaultLimits covers a full azimuth circle and horizon to zenith.
var DefaultLimits = Limits{MinAzimuth: -360, MaxAzimuth: 360, MinElevation: 0, MaxElevation: 90}

// ErrOutOfRange is returned for an angle outside the controller limits.
var ErrOutOfRange = errors.New("angle out of range")

// Axis names a pointing axis in a Command.
type Axis string

const (
	AxisAzimuth   Axis = "azimuth"
	AxisElevation Axis = "elevation"
)

// Command is one accepted Set call on a Simulated controller.
type Command struct {
	Axis    Axis
	Degrees float64
	At      time.Time
}

// Simulated is an in-memory Controller that records every accepted
// command with the clock time it arrived.
type Simulated struct {
	clock  clock.Clock
	limits Limits

	mu        sync.Mutex
	azimuth   float64
	elevation float64
	commands  []Command
	failNext  error
}

var _ Controller = (*Simulated)(nil)

// NewSimulated returns a controller at the given initial pose.
func NewSimulated(clk clock.Clock, limits Limits, azimuth, elevation float64) *Simulated {
	return &Simulated{clock: clk, limits: limits, azimuth: azimuth, elevation: elevation}
}

func (s *Simulated) SetAzimuth(degrees float64) error {
	return s.set(AxisAzimuth, degrees, s.limits.MinAzimuth, s.limits.MaxAzimuth)
}

func (s *Simulated) SetElevation(degrees float64) error {
	return s.set(AxisElevation, degrees, s.limits.MinElevation, s.limits.MaxElevation)
}

func (s *Simulated) set(axis Axis, degrees, low, high float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if math.IsNaN(degrees) || degrees < low || degrees > high {
		return fmt.Errorf("%s %v outside [%v, %v]: %w", axis, degrees, low, high, ErrOutOfRange)
	}
	switch axis {
	case AxisAzimuth:
		s.azimuth = degrees
	case AxisElevation:
		s.elevation = degrees
	}
	s.commands = append(s.commands, Command{Axis: axis, Degrees: degrees, At: s.clock.Now()})
	return nil
}

func (s *Simulated) Azimuth() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.azimuth, nil
}

func (s *Simulated) Elevation() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elevation, nil
}

// Commands returns a copy of the accepted command log.
func (s *Simulated) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// FailNext makes the next Set call return err without moving.
func (s *Simulated) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// FixedGPS reports a constant fix.
type FixedGPS GPSStatus

var _ GPS = FixedGPS{}

func (g FixedGPS) Status() (GPSStatus, error) { return GPSStatus(g), nil }

// NoGPS reports no fix, for nodes without a receiver.
type NoGPS struct{}

func (NoGPS) Status() (GPSStatus, error) { return GPSStatus{}, nil }
