// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type streamRequest struct {
	Count   int    `cbor:"count"`
	Payload string `cbor:"payload,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"b": 2, "a": 1, "c": []any{"x", 3}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestCloneIsolatesSender(t *testing.T) {
	original := map[string]any{"answer": 42}
	raw, err := Clone(original)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	original["answer"] = 7

	var decoded map[string]any
	if err := Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["answer"] != uint64(42) {
		t.Errorf("clone observed sender mutation: got %v", decoded["answer"])
	}
}

func TestCloneNil(t *testing.T) {
	raw, err := Clone(nil)
	if err != nil {
		t.Fatalf("Clone(nil): %v", err)
	}

	var decoded any = "sentinel"
	if err := Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != nil {
		t.Errorf("decoded = %v, want nil", decoded)
	}
}

func TestNullResetsPrefilledTargets(t *testing.T) {
	null, err := Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal(nil): %v", err)
	}

	text := "stale"
	if err := Unmarshal(null, &text); err != nil || text != "" {
		t.Errorf("string after null = %q (err %v), want empty", text, err)
	}
	count := 7
	if err := Unmarshal(null, &count); err != nil || count != 0 {
		t.Errorf("int after null = %d (err %v), want 0", count, err)
	}
	fields := map[string]any{"stale": true}
	if err := Unmarshal(null, &fields); err != nil || fields != nil {
		t.Errorf("map after null = %v (err %v), want nil", fields, err)
	}
	if err := Unmarshal(null, nil); err == nil {
		t.Error("Unmarshal into nil target succeeded")
	}

	// A value that is not null decodes normally over a pre-filled target.
	five, _ := Marshal(5)
	if err := Unmarshal(five, &count); err != nil || count != 5 {
		t.Errorf("int after 5 = %d (err %v)", count, err)
	}
}

func TestUntypedMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"element": "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	requests := []streamRequest{
		{Count: 10, Payload: "42"},
		{Count: 0},
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
		var got streamRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got != want {
			t.Errorf("request %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var request streamRequest
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &request); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}
