// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

// controlRequest uses cbor tags, the convention for socket-only types.
type controlRequest struct {
	Action string `cbor:"action"`
	Device uint32 `cbor:"device,omitempty"`
	Count  int    `cbor:"count"`
}

// moveReport uses json tags, the convention for types that are also
// printed by the CLI.
type moveReport struct {
	Device      uint32        `json:"device"`
	Compensated time.Time     `json:"compensated"`
	AverageRTT  time.Duration `json:"average_rtt"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := controlRequest{Action: "move", Device: 0x01, Count: 2}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded controlRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"device": 1, "action": "status", "azimuth": 90.5}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestTimestampsKeepNanoseconds(t *testing.T) {
	original := moveReport{
		Device:      0x01,
		Compensated: time.Date(2026, 3, 1, 12, 0, 2, 123456789, time.UTC),
		AverageRTT:  1500 * time.Microsecond,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded moveReport
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Compensated.Equal(original.Compensated) {
		t.Errorf("Compensated = %v, want %v", decoded.Compensated, original.Compensated)
	}
	if decoded.AverageRTT != original.AverageRTT || decoded.Device != original.Device {
		t.Errorf("decoded %+v, want %+v", decoded, original)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	requests := []controlRequest{
		{Action: "fleet"},
		{Action: "status", Device: 0x02},
		{Action: "heartbeat", Count: 3},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range requests {
		var got controlRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode request %d: %v", i, err)
		}
		if got != want {
			t.Errorf("request %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestAnyMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "move", "device": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if fields["action"] != "move" {
		t.Errorf("action = %v, want move", fields["action"])
	}
}

func TestOmitemptyRespected(t *testing.T) {
	with, err := Marshal(controlRequest{Action: "a", Device: 7})
	if err != nil {
		t.Fatal(err)
	}
	without, err := Marshal(controlRequest{Action: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(without) >= len(with) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes", len(without), len(with))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var request controlRequest
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &request); err == nil {
		t.Error("Unmarshal accepted invalid CBOR")
	}
}

func BenchmarkMarshal(b *testing.B) {
	request := controlRequest{Action: "move", Device: 0x01, Count: 1}
	b.ReportAllocs()
	for b.Loop() {
		Marshal(request)
	}
}
