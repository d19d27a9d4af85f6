// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"reflect"
	"testing"

	"github.com/bureau-foundation/outpost/lib/codec"
)

func roundtripRequest(t *testing.T, request Request) Request {
	t.Helper()
	data, err := codec.Marshal(request)
	if err != nil {
		t.Fatalf("marshal %s: %v", request.Payload.Op(), err)
	}
	var decoded Request
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal %s: %v", request.Payload.Op(), err)
	}
	return decoded
}

func TestRequestRoundtripAllKinds(t *testing.T) {
	payloads := []RequestArgs{
		&FileRead{Path: "/etc/hosts"},
		&FileReadText{Path: "/etc/hosts"},
		&FileWrite{Path: "/t/a", Data: []byte{0x00, 0xff, 0x10}},
		&FileWriteText{Path: "/t/a", Text: "hi"},
		&FileAppend{Path: "/t/a", Data: []byte("more")},
		&FileAppendText{Path: "/t/a", Text: "more"},
		&DirRead{Path: "/t", Depth: 3, Absolute: true, Canonicalize: true, IncludeRoot: true},
		&DirCreate{Path: "/t/d", All: true},
		&Remove{Path: "/t/d", Force: true},
		&Copy{Src: "/a", Dst: "/b"},
		&Rename{Src: "/a", Dst: "/b"},
		&Exists{Path: "/"},
		&MetadataRequest{Path: "/t", Canonicalize: true, ResolveFileType: true},
		&Watch{Path: "/t", Recursive: true, Only: []ChangeKind{ChangeCreated}, Except: []ChangeKind{ChangeOther}},
		&Unwatch{Path: "/t"},
		&ProcSpawn{
			Cmd:     "echo",
			Args:    []string{"hello"},
			Env:     map[string]string{"TERM": "xterm"},
			Cwd:     "/tmp",
			Persist: true,
			Pty:     &PtySize{Rows: 24, Cols: 80},
		},
		&ProcStdin{ID: 7, Data: []byte("input\n")},
		&ProcResizePty{ID: 7, Rows: 50, Cols: 132},
		&ProcKill{ID: 7},
		&ProcList{},
		&SystemInfoRequest{},
	}

	for index, payload := range payloads {
		original := Request{ID: uint64(index) + 1, Tenant: "test", Payload: payload}
		decoded := roundtripRequest(t, original)
		if decoded.ID != original.ID || decoded.Tenant != original.Tenant {
			t.Errorf("%s: envelope fields lost: %+v", payload.Op(), decoded)
		}
		if !reflect.DeepEqual(decoded.Payload, payload) {
			t.Errorf("%s: payload mismatch:\n got %#v\nwant %#v", payload.Op(), decoded.Payload, payload)
		}
	}
}

func TestRequestBatchRoundtrip(t *testing.T) {
	original := Request{
		ID: 9,
		Payload: &Batch{Payloads: []RequestArgs{
			&FileWriteText{Path: "/t/a", Text: "x"},
			&Exists{Path: "/t/a"},
		}},
	}
	decoded := roundtripRequest(t, original)

	batch, ok := decoded.Payload.(*Batch)
	if !ok {
		t.Fatalf("payload decoded as %T", decoded.Payload)
	}
	if len(batch.Payloads) != 2 {
		t.Fatalf("batch length: %d", len(batch.Payloads))
	}
	if !reflect.DeepEqual(batch.Payloads[0], &FileWriteText{Path: "/t/a", Text: "x"}) {
		t.Errorf("first sub-payload: %#v", batch.Payloads[0])
	}
	if !reflect.DeepEqual(batch.Payloads[1], &Exists{Path: "/t/a"}) {
		t.Errorf("second sub-payload: %#v", batch.Payloads[1])
	}
}

func TestRequestUnknownOpDecodesToUnknown(t *testing.T) {
	data, err := codec.Marshal(map[string]any{
		"id": 3,
		"payload": map[string]any{
			"op": "quantum-entangle",
		},
	})
	if err != nil {
		t.Fatalf("building wire bytes: %v", err)
	}

	var decoded Request
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	unknown, ok := decoded.Payload.(*UnknownRequest)
	if !ok {
		t.Fatalf("payload decoded as %T, want *UnknownRequest", decoded.Payload)
	}
	if unknown.RawOp != "quantum-entangle" {
		t.Errorf("raw op: %q", unknown.RawOp)
	}
}

func TestRequestOptionalFieldsDefault(t *testing.T) {
	// A dir-read with only a path decodes with all options at their
	// defaults.
	data, err := codec.Marshal(map[string]any{
		"id": 1,
		"payload": map[string]any{
			"op":   "dir-read",
			"args": codec.RawMessage(mustMarshal(t, map[string]any{"path": "/t"})),
		},
	})
	if err != nil {
		t.Fatalf("building wire bytes: %v", err)
	}

	var decoded Request
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dirRead, ok := decoded.Payload.(*DirRead)
	if !ok {
		t.Fatalf("payload decoded as %T", decoded.Payload)
	}
	if dirRead.Depth != 0 || dirRead.Absolute || dirRead.Canonicalize || dirRead.IncludeRoot {
		t.Errorf("defaults not zero: %+v", dirRead)
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
