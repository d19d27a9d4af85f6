// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"io/fs"
	"reflect"
	"syscall"
	"testing"

	"github.com/bureau-foundation/outpost/lib/codec"
)

func TestResponseRoundtripAllKinds(t *testing.T) {
	exitCode := 0
	payloads := []ResponseArgs{
		&Ok{},
		&Error{Kind: KindNotFound, Description: "no such file"},
		&Blob{Data: []byte{1, 2, 3}},
		&Text{Text: "hi"},
		&DirEntries{
			Entries: []DirEntry{{Path: "x", FileType: FileTypeFile, Depth: 1}},
			Errors:  []Error{},
		},
		&ExistsResult{Value: true},
		&Metadata{
			FileType: FileTypeDir,
			Len:      4096,
			Modified: 1700000000000,
			Unix:     &UnixPermissions{OwnerRead: true, OwnerWrite: true, OwnerExec: true, GroupRead: true, OtherRead: true},
		},
		&Changed{
			Path:      "/t/new",
			Kind:      ChangeCreated,
			Timestamp: 1700000000,
			Details:   &ChangeDetails{Timestamp: 1699999999},
		},
		&Unwatched{},
		&ProcSpawned{ID: 4, Pid: 4242},
		&ProcStdout{ID: 4, Data: []byte("out")},
		&ProcStderr{ID: 4, Data: []byte("err")},
		&ProcDone{ID: 4, Success: true, Code: &exitCode},
		&ProcEntries{Entries: []ProcEntry{{ID: 4, Cmd: "sleep", Args: []string{"10"}, Persist: true, Pty: &PtySize{Rows: 24, Cols: 80}}}},
		&SystemInfo{Family: "unix", OS: "linux", Arch: "amd64", CurrentDir: "/", MainSeparator: "/", Username: "root", Shell: "/bin/sh"},
	}

	for index, payload := range payloads {
		original := Response{ID: uint64(index) + 100, OriginID: 7, Tenant: "test", Payload: payload}
		data, err := codec.Marshal(original)
		if err != nil {
			t.Fatalf("marshal %s: %v", payload.Op(), err)
		}
		var decoded Response
		if err := codec.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", payload.Op(), err)
		}
		if decoded.ID != original.ID || decoded.OriginID != 7 || decoded.Tenant != "test" {
			t.Errorf("%s: envelope fields lost: %+v", payload.Op(), decoded)
		}
		if !reflect.DeepEqual(decoded.Payload, payload) {
			t.Errorf("%s: payload mismatch:\n got %#v\nwant %#v", payload.Op(), decoded.Payload, payload)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []ResponseArgs{
		&Ok{}, &Error{}, &Blob{}, &Text{}, &DirEntries{}, &ExistsResult{},
		&Metadata{}, &Unwatched{}, &ProcDone{}, &ProcEntries{}, &SystemInfo{},
	}
	for _, payload := range terminal {
		if !IsTerminal(payload) {
			t.Errorf("%s should be terminal", payload.Op())
		}
	}

	streaming := []ResponseArgs{
		&ProcSpawned{}, &ProcStdout{}, &ProcStderr{}, &Changed{},
	}
	for _, payload := range streaming {
		if IsTerminal(payload) {
			t.Errorf("%s should not be terminal", payload.Op())
		}
	}
}

func TestErrorFromClassifiesOSErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{fs.ErrNotExist, KindNotFound},
		{fs.ErrPermission, KindPermissionDenied},
		{fs.ErrExist, KindAlreadyExists},
		{syscall.EPIPE, KindBrokenPipe},
		{syscall.EINVAL, KindInvalidInput},
		{syscall.ENOTSUP, KindUnsupported},
		{errors.New("weird"), KindIO},
	}
	for _, testCase := range cases {
		got := ErrorFrom(testCase.err)
		if got.Kind != testCase.want {
			t.Errorf("ErrorFrom(%v): kind %s, want %s", testCase.err, got.Kind, testCase.want)
		}
	}
}

func TestErrorFromPassesWireErrorsThrough(t *testing.T) {
	original := NewError(KindAuth, "bad key")
	got := ErrorFrom(original)
	if got != original {
		t.Errorf("wire error was rewrapped: %+v", got)
	}
}

func TestUnixPermissionsModeRoundtrip(t *testing.T) {
	for _, mode := range []uint32{0o000, 0o644, 0o755, 0o400, 0o777, 0o640} {
		permissions := UnixPermissionsFromMode(mode)
		if got := permissions.Mode(); got != mode {
			t.Errorf("mode %04o roundtripped to %04o", mode, got)
		}
	}
}

func TestKindFilter(t *testing.T) {
	all := NewKindFilter(nil, nil)
	if !all.Allows(ChangeCreated) || !all.Allows(ChangeOther) {
		t.Error("zero filter should pass everything")
	}

	only := NewKindFilter([]ChangeKind{ChangeCreated, ChangeModified}, nil)
	if !only.Allows(ChangeCreated) || only.Allows(ChangeRemoved) {
		t.Error("only filter misbehaved")
	}

	except := NewKindFilter(nil, []ChangeKind{ChangeOther})
	if except.Allows(ChangeOther) || !except.Allows(ChangeRemoved) {
		t.Error("except filter misbehaved")
	}

	both := NewKindFilter([]ChangeKind{ChangeCreated, ChangeModified}, []ChangeKind{ChangeModified})
	if !both.Allows(ChangeCreated) || both.Allows(ChangeModified) {
		t.Error("combined filter misbehaved")
	}
}
