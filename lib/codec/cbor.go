// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Payloads decoded into any must look like JSON objects to
		// handlers, not map[interface{}]interface{}.
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

// CBOR simple values for null and undefined.
const (
	cborNull      = 0xf6
	cborUndefined = 0xf7
)

// Unmarshal decodes CBOR data into v. A top-level null or undefined
// resets the value v points to, so a pre-filled target observes an
// empty reply. Nested nulls follow the decoder's rules.
func Unmarshal(data []byte, v any) error {
	if len(data) == 1 && (data[0] == cborNull || data[0] == cborUndefined) {
		if target := reflect.ValueOf(v); target.Kind() == reflect.Pointer && !target.IsNil() {
			target.Elem().SetZero()
			return nil
		}
	}
	return decMode.Unmarshal(data, v)
}

// Clone encodes v into a RawMessage that can be handed to another
// context. A nil v encodes as CBOR null.
func Clone(v any) (RawMessage, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawMessage(data), nil
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is an encoded CBOR value whose decoding is deferred to
// the receiver.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
