// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleEnvelope is a representative wire message using cbor struct
// tags (the convention for all Outpost protocol types).
type sampleEnvelope struct {
	Op     string `cbor:"op"`
	Tenant string `cbor:"tenant,omitempty"`
	Count  int    `cbor:"count"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleEnvelope{
		Op:     "file-read",
		Tenant: "cli-17",
		Count:  42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleEnvelope{Op: "exists", Tenant: "t", Count: 7}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// Encode a map with an extra field a current decoder doesn't know.
	data, err := Marshal(map[string]any{
		"op":     "exists",
		"count":  3,
		"future": "ignored",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Op != "exists" || decoded.Count != 3 {
		t.Errorf("known fields lost: %+v", decoded)
	}
}

func TestDefaultMapTypeIsStringKeyed(t *testing.T) {
	data, err := Marshal(map[string]any{"inner": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	inner, ok := decoded["inner"].(map[string]any)
	if !ok {
		t.Fatalf("inner map decoded as %T, want map[string]any", decoded["inner"])
	}
	if inner["k"] != "v" {
		t.Errorf("inner value: got %v", inner["k"])
	}
}
