// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is Core Deterministic Encoding (RFC 8949 §4.2) with
// timestamps written as RFC 3339 strings carrying nanoseconds, so move
// instants survive the control socket without truncation.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Control requests are decoded into map[string]any before the
		// action is known; keep string keys so the values interoperate
		// with encoding/json.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, used to delay decoding.
type RawMessage = cbor.RawMessage

// NewEncoder returns an encoder writing to w in the standard mode.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r in the standard mode.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
