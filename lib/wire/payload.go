// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// CommandType tags the payload variant carried by a frame.
type CommandType uint8

const (
	CommandHeartbeatRequest  CommandType = 1
	CommandHeartbeatResponse CommandType = 2
	CommandMoveRequest       CommandType = 3
	CommandMoveResponse      CommandType = 4
	CommandStatusRequest     CommandType = 5
	CommandStatusResponse    CommandType = 6
	CommandPingRequest       CommandType = 7
	CommandPingResponse      CommandType = 8
)

var commandNames = map[CommandType]string{
	CommandHeartbeatRequest:  "heartbeat-request",
	CommandHeartbeatResponse: "heartbeat-response",
	CommandMoveRequest:       "move-request",
	CommandMoveResponse:      "move-response",
	CommandStatusRequest:     "status-request",
	CommandStatusResponse:    "status-response",
	CommandPingRequest:       "ping-request",
	CommandPingResponse:      "ping-response",
}

func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// IsResponse reports whether c is sent by followers in reply to a
// leader request.
func (c CommandType) IsResponse() bool {
	switch c {
	case CommandHeartbeatResponse, CommandMoveResponse, CommandStatusResponse, CommandPingResponse:
		return true
	}
	return false
}

// Payload is one of the variants below.
type Payload interface {
	Type() CommandType
	MarshalBinary() ([]byte, error)
}

// Targeted is implemented by payloads addressed to (or answering for)
// a single device.
type Targeted interface {
	Payload
	Target() uint32
}

// Instant is an absolute wall-clock time as whole epoch seconds plus
// the nanoseconds into that second. Nanos is always below 1e9.
type Instant struct {
	Seconds int64
	Nanos   uint32
}

// InstantOf converts t to an Instant.
func InstantOf(t time.Time) Instant {
	return Instant{Seconds: t.Unix(), Nanos: uint32(t.Nanosecond())}
}

// Time converts the instant back to a time.Time in UTC.
func (i Instant) Time() time.Time {
	return time.Unix(i.Seconds, int64(i.Nanos)).UTC()
}

// Fraction returns the sub-second part in [0, 1).
func (i Instant) Fraction() float64 {
	return float64(i.Nanos) / float64(time.Second)
}

func (i Instant) String() string {
	return i.Time().Format(time.RFC3339Nano)
}

// HeartbeatRequest is the leader's liveness probe. It has no body.
type HeartbeatRequest struct{}

// HeartbeatResponse acknowledges a HeartbeatRequest from the followed
// leader. It has no body; the envelope's device id names the responder.
type HeartbeatResponse struct{}

// MoveRequest asks a device to point at (Azimuth, Elevation) degrees
// at MoveAt on the device's own clock.
type MoveRequest struct {
	TargetDeviceID uint32
	Azimuth        float64
	Elevation      float64
	MoveAt         Instant
}

// MoveResponse reports the outcome of an executed move. Late moves are
// never answered.
type MoveResponse struct {
	TargetDeviceID uint32
	OK             bool
}

// StatusRequest asks a device for its pointing and position.
type StatusRequest struct {
	TargetDeviceID uint32
}

// StatusResponse carries a device's current pointing and GPS fix.
// Latitude and Longitude are meaningless unless PositionValid.
type StatusResponse struct {
	TargetDeviceID uint32
	Azimuth        float64
	Elevation      float64
	Latitude       float64
	Longitude      float64
	PositionValid  bool
}

// PingRequest carries the leader's send time for clock-offset probing.
type PingRequest struct {
	TargetDeviceID uint32
	SentAt         Instant
}

// PingResponse echoes SentAt and adds the follower's local receive time.
type PingResponse struct {
	TargetDeviceID uint32
	SentAt         Instant
	ReceivedAt     Instant
}

func (HeartbeatRequest) Type() CommandType  { return CommandHeartbeatRequest }
func (HeartbeatResponse) Type() CommandType { return CommandHeartbeatResponse }
func (MoveRequest) Type() CommandType       { return CommandMoveRequest }
func (MoveResponse) Type() CommandType      { return CommandMoveResponse }
func (StatusRequest) Type() CommandType     { return CommandStatusRequest }
func (StatusResponse) Type() CommandType    { return CommandStatusResponse }
func (PingRequest) Type() CommandType       { return CommandPingRequest }
func (PingResponse) Type() CommandType      { return CommandPingResponse }

func (p MoveRequest) Target() uint32    { return p.TargetDeviceID }
func (p MoveResponse) Target() uint32   { return p.TargetDeviceID }
func (p StatusRequest) Target() uint32  { return p.TargetDeviceID }
func (p StatusResponse) Target() uint32 { return p.TargetDeviceID }
func (p PingRequest) Target() uint32    { return p.TargetDeviceID }
func (p PingResponse) Target() uint32   { return p.TargetDeviceID }

func (HeartbeatRequest) MarshalBinary() ([]byte, error)  { return nil, nil }
func (HeartbeatResponse) MarshalBinary() ([]byte, error) { return nil, nil }

func (p MoveRequest) MarshalBinary() ([]byte, error) {
	if err := p.MoveAt.validate(); err != nil {
		return nil, err
	}
	body := make([]byte, 0, 32)
	body = binary.BigEndian.AppendUint32(body, p.TargetDeviceID)
	body = appendFloat(body, p.Azimuth)
	body = appendFloat(body, p.Elevation)
	body = appendInstant(body, p.MoveAt)
	return body, nil
}

func (p MoveResponse) MarshalBinary() ([]byte, error) {
	body := binary.BigEndian.AppendUint32(make([]byte, 0, 5), p.TargetDeviceID)
	return appendBool(body, p.OK), nil
}

func (p StatusRequest) MarshalBinary() ([]byte, error) {
	return binary.BigEndian.AppendUint32(nil, p.TargetDeviceID), nil
}

func (p StatusResponse) MarshalBinary() ([]byte, error) {
	body := make([]byte, 0, 37)
	body = binary.BigEndian.AppendUint32(body, p.TargetDeviceID)
	body = appendFloat(body, p.Azimuth)
	body = appendFloat(body, p.Elevation)
	body = appendFloat(body, p.Latitude)
	body = appendFloat(body, p.Longitude)
	return appendBool(body, p.PositionValid), nil
}

func (p PingRequest) MarshalBinary() ([]byte, error) {
	if err := p.SentAt.validate(); err != nil {
		return nil, err
	}
	body := binary.BigEndian.AppendUint32(make([]byte, 0, 16), p.TargetDeviceID)
	return appendInstant(body, p.SentAt), nil
}

func (p PingResponse) MarshalBinary() ([]byte, error) {
	if err := p.SentAt.validate(); err != nil {
		return nil, err
	}
	if err := p.ReceivedAt.validate(); err != nil {
		return nil, err
	}
	body := binary.BigEndian.AppendUint32(make([]byte, 0, 28), p.TargetDeviceID)
	body = appendInstant(body, p.SentAt)
	return appendInstant(body, p.ReceivedAt), nil
}

// decoders maps each command type to its body parser.
var decoders = map[CommandType]func(body []byte) (Payload, error){
	CommandHeartbeatRequest: func(body []byte) (Payload, error) {
		return HeartbeatRequest{}, newReader(body).finish()
	},
	CommandHeartbeatResponse: func(body []byte) (Payload, error) {
		return HeartbeatResponse{}, newReader(body).finish()
	},
	CommandMoveRequest: func(body []byte) (Payload, error) {
		r := newReader(body)
		p := MoveRequest{
			TargetDeviceID: r.uint32(),
			Azimuth:        r.float(),
			Elevation:      r.float(),
			MoveAt:         r.instant(),
		}
		return p, r.finish()
	},
	CommandMoveResponse: func(body []byte) (Payload, error) {
		r := newReader(body)
		p := MoveResponse{TargetDeviceID: r.uint32(), OK: r.bool()}
		return p, r.finish()
	},
	CommandStatusRequest: func(body []byte) (Payload, error) {
		r := newReader(body)
		p := StatusRequest{TargetDeviceID: r.uint32()}
		return p, r.finish()
	},
	CommandStatusResponse: func(body []byte) (Payload, error) {
		r := newReader(body)
		p := StatusResponse{
			TargetDeviceID: r.uint32(),
			Azimuth:        r.float(),
			Elevation:      r.float(),
			Latitude:       r.float(),
			Longitude:      r.float(),
			PositionValid:  r.bool(),
		}
		return p, r.finish()
	},
	CommandPingRequest: func(body []byte) (Payload, error) {
		r := newReader(body)
		p := PingRequest{TargetDeviceID: r.uint32(), SentAt: r.instant()}
		return p, r.finish()
	},
	CommandPingResponse: func(body []byte) (Payload, error) {
		r := newReader(body)
		p := PingResponse{TargetDeviceID: r.uint32(), SentAt: r.instant(), ReceivedAt: r.instant()}
		return p, r.finish()
	},
}

func (i Instant) validate() error {
	if i.Nanos >= uint32(time.Second) {
		return fmt.Errorf("instant nanos %d out of range", i.Nanos)
	}
	return nil
}

func appendFloat(body []byte, value float64) []byte {
	return binary.BigEndian.AppendUint64(body, math.Float64bits(value))
}

func appendBool(body []byte, value bool) []byte {
	if value {
		return append(body, 1)
	}
	return append(body, 0)
}

func appendInstant(body []byte, instant Instant) []byte {
	body = binary.BigEndian.AppendUint64(body, uint64(instant.Seconds))
	return binary.BigEndian.AppendUint32(body, instant.Nanos)
}

var errShortBody = errors.New("body too short")

// reader consumes a payload body field by field. The first failure
// sticks; later reads return zero values and finish reports it.
type reader struct {
	body []byte
	err  error
}

func newReader(body []byte) *reader { return &reader{body: body} }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.body) < n {
		r.err = errShortBody
		return nil
	}
	field := r.body[:n]
	r.body = r.body[n:]
	return field
}

func (r *reader) uint32() uint32 {
	if field := r.take(4); field != nil {
		return binary.BigEndian.Uint32(field)
	}
	return 0
}

func (r *reader) float() float64 {
	if field := r.take(8); field != nil {
		return math.Float64frombits(binary.BigEndian.Uint64(field))
	}
	return 0
}

func (r *reader) bool() bool {
	field := r.take(1)
	if field == nil {
		return false
	}
	switch field[0] {
	case 0:
		return false
	case 1:
		return true
	}
	r.err = fmt.Errorf("boolean byte %#x", field[0])
	return false
}

func (r *reader) instant() Instant {
	field := r.take(12)
	if field == nil {
		return Instant{}
	}
	instant := Instant{
		Seconds: int64(binary.BigEndian.Uint64(field[:8])),
		Nanos:   binary.BigEndian.Uint32(field[8:]),
	}
	if err := instant.validate(); err != nil {
		r.err = err
	}
	return instant
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.body) != 0 {
		return fmt.Errorf("%d trailing bytes", len(r.body))
	}
	return nil
}
