// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// Version is the protocol version written into every frame.
	// Frames carrying any other version are rejected.
	Version byte = 1

	// MaxDatagramSize bounds an encoded frame, envelope included.
	MaxDatagramSize = 1024

	// HeaderSize is the envelope prefix before the payload body.
	HeaderSize = 14

	// checksumSize is the truncated digest length in the trailer.
	checksumSize = 8

	// Overhead is the envelope size around the payload body.
	Overhead = HeaderSize + checksumSize + 2

	// MaxPayloadSize is the largest body that fits in one datagram.
	MaxPayloadSize = MaxDatagramSize - Overhead
)

var (
	headerMagic  = [2]byte{0xA7, 0x3E}
	trailerMagic = [2]byte{0x3E, 0xA7}
)

// frameDomainKey separates frame checksums from any other BLAKE3 use.
// ASCII "antenny.wire.frame", zero-padded to 32 bytes.
var frameDomainKey = [32]byte{
	'a', 'n', 't', 'e', 'n', 'n', 'y', '.', 'w', 'i', 'r', 'e', '.',
	'f', 'r', 'a', 'm', 'e',
}

var (
	// ErrMalformedFrame reports a datagram that failed structural
	// validation: short, bad magic, wrong version, inconsistent
	// length, checksum mismatch, or an undecodable payload body.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownPayload reports a structurally valid frame whose
	// command type has no registered decoder.
	ErrUnknownPayload = errors.New("unknown payload type")

	// ErrFrameTooLarge reports an encode that would exceed
	// MaxDatagramSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum datagram size")
)

// Packet is one decoded datagram: who sent it, on which channel, and
// what it carries.
type Packet struct {
	DeviceID uint32
	Channel  uint32
	Payload  Payload
}

// Encode serializes packet into a new datagram.
func Encode(packet Packet) ([]byte, error) {
	if packet.Payload == nil {
		return nil, errors.New("encoding packet: nil payload")
	}
	body, err := packet.Payload.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", packet.Payload.Type(), err)
	}
	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, limit %d",
			ErrFrameTooLarge, packet.Payload.Type(), len(body), MaxPayloadSize)
	}

	frame := make([]byte, 0, Overhead+len(body))
	frame = append(frame, headerMagic[:]...)
	frame = append(frame, Version, byte(packet.Payload.Type()))
	frame = binary.BigEndian.AppendUint32(frame, packet.DeviceID)
	frame = binary.BigEndian.AppendUint32(frame, packet.Channel)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(body)))
	frame = append(frame, body...)
	sum := checksum(frame)
	frame = append(frame, sum[:]...)
	frame = append(frame, trailerMagic[:]...)
	return frame, nil
}

// Decode parses one datagram. The input is not retained.
func Decode(data []byte) (Packet, error) {
	if len(data) < Overhead {
		return Packet{}, fmt.Errorf("%w: %d bytes, minimum is %d", ErrMalformedFrame, len(data), Overhead)
	}
	if len(data) > MaxDatagramSize {
		return Packet{}, fmt.Errorf("%w: %d bytes, maximum is %d", ErrMalformedFrame, len(data), MaxDatagramSize)
	}
	if data[0] != headerMagic[0] || data[1] != headerMagic[1] {
		return Packet{}, fmt.Errorf("%w: bad header magic %02x%02x", ErrMalformedFrame, data[0], data[1])
	}
	if data[2] != Version {
		return Packet{}, fmt.Errorf("%w: protocol version %d, want %d", ErrMalformedFrame, data[2], Version)
	}

	bodyLength := int(binary.BigEndian.Uint16(data[12:14]))
	if bodyLength != len(data)-Overhead {
		return Packet{}, fmt.Errorf("%w: payload length field %d, frame carries %d",
			ErrMalformedFrame, bodyLength, len(data)-Overhead)
	}

	checksumStart := HeaderSize + bodyLength
	trailerStart := checksumStart + checksumSize
	if data[trailerStart] != trailerMagic[0] || data[trailerStart+1] != trailerMagic[1] {
		return Packet{}, fmt.Errorf("%w: bad trailer magic", ErrMalformedFrame)
	}
	sum := checksum(data[:checksumStart])
	if !bytes.Equal(sum[:], data[checksumStart:trailerStart]) {
		return Packet{}, fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
	}

	commandType := CommandType(data[3])
	decode, ok := decoders[commandType]
	if !ok {
		return Packet{}, fmt.Errorf("%w: command type %d", ErrUnknownPayload, data[3])
	}
	payload, err := decode(data[HeaderSize:checksumStart])
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %s body: %v", ErrMalformedFrame, commandType, err)
	}

	return Packet{
		DeviceID: binary.BigEndian.Uint32(data[4:8]),
		Channel:  binary.BigEndian.Uint32(data[8:12]),
		Payload:  payload,
	}, nil
}

// PeekChannel returns the channel field of a frame without validating
// or decoding it, so receivers can discard foreign fleets cheaply.
// Reports false if data is too short to carry a header.
func PeekChannel(data []byte) (uint32, bool) {
	if len(data) < HeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(data[8:12]), true
}

func checksum(data []byte) [checksumSize]byte {
	// NewKeyed only fails for keys that are not 32 bytes long.
	hasher, err := blake3.NewKeyed(frameDomainKey[:])
	if err != nil {
		panic("wire: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum [checksumSize]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
