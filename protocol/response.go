// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/outpost/lib/codec"
)

// ResponseOp names a response payload kind.
type ResponseOp string

const (
	OpOk             ResponseOp = "ok"
	OpError          ResponseOp = "error"
	OpBlob           ResponseOp = "blob"
	OpText           ResponseOp = "text"
	OpDirEntries     ResponseOp = "dir-entries"
	OpExistsResult   ResponseOp = "exists"
	OpMetadataResult ResponseOp = "metadata"
	OpChanged        ResponseOp = "changed"
	OpUnwatched      ResponseOp = "watch-unwatched"
	OpProcSpawned    ResponseOp = "process-spawned"
	OpProcStdout     ResponseOp = "process-stdout"
	OpProcStderr     ResponseOp = "process-stderr"
	OpProcDone       ResponseOp = "process-done"
	OpProcEntries    ResponseOp = "proc-entries"
	OpSystemInfoRes  ResponseOp = "system-info"
)

// ResponseArgs is implemented by every response payload type.
type ResponseArgs interface {
	Op() ResponseOp
}

// Response is the server-to-client envelope.
type Response struct {
	// ID is unique per session, allocated by the server.
	ID uint64

	// OriginID is the id of the request this responds to. Zero would
	// mean server-initiated and unsolicited; the core never sends it.
	OriginID uint64

	// Tenant is copied from the originating request.
	Tenant string

	// Payload is the response content.
	Payload ResponseArgs
}

// responseWire is the CBOR shape of a Response.
type responseWire struct {
	ID       uint64      `cbor:"id"`
	OriginID uint64      `cbor:"origin_id"`
	Tenant   string      `cbor:"tenant,omitempty"`
	Payload  payloadWire `cbor:"payload"`
}

// MarshalCBOR encodes the envelope with its adjacent-tagged payload.
func (r Response) MarshalCBOR() ([]byte, error) {
	if r.Payload == nil {
		return nil, fmt.Errorf("response payload is nil")
	}
	raw, err := codec.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s args: %w", r.Payload.Op(), err)
	}
	return codec.Marshal(responseWire{
		ID:       r.ID,
		OriginID: r.OriginID,
		Tenant:   r.Tenant,
		Payload:  payloadWire{Op: string(r.Payload.Op()), Args: raw},
	})
}

// UnmarshalCBOR decodes the envelope. An unknown op decodes to
// UnknownResponse so a version-skewed server degrades per response
// rather than killing the connection.
func (r *Response) UnmarshalCBOR(data []byte) error {
	var wire responseWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}

	args := newResponseArgs(ResponseOp(wire.Payload.Op))
	if args == nil {
		args = &UnknownResponse{RawOp: wire.Payload.Op}
	} else if len(wire.Payload.Args) > 0 {
		if err := codec.Unmarshal(wire.Payload.Args, args); err != nil {
			return fmt.Errorf("decoding %s args: %w", wire.Payload.Op, err)
		}
	}

	r.ID = wire.ID
	r.OriginID = wire.OriginID
	r.Tenant = wire.Tenant
	r.Payload = args
	return nil
}

// newResponseArgs returns a zero value for the given op, or nil when
// the op is not part of the closed response set.
func newResponseArgs(op ResponseOp) ResponseArgs {
	switch op {
	case OpOk:
		return &Ok{}
	case OpError:
		return &Error{}
	case OpBlob:
		return &Blob{}
	case OpText:
		return &Text{}
	case OpDirEntries:
		return &DirEntries{}
	case OpExistsResult:
		return &ExistsResult{}
	case OpMetadataResult:
		return &Metadata{}
	case OpChanged:
		return &Changed{}
	case OpUnwatched:
		return &Unwatched{}
	case OpProcSpawned:
		return &ProcSpawned{}
	case OpProcStdout:
		return &ProcStdout{}
	case OpProcStderr:
		return &ProcStderr{}
	case OpProcDone:
		return &ProcDone{}
	case OpProcEntries:
		return &ProcEntries{}
	case OpSystemInfoRes:
		return &SystemInfo{}
	default:
		return nil
	}
}

// IsTerminal reports whether a payload ends its response sequence.
// Streaming continuations (process spawn/output, change events) are
// the only non-terminal payloads; everything else — including Error —
// closes the sequence for its request.
func IsTerminal(args ResponseArgs) bool {
	switch args.(type) {
	case *ProcSpawned, *ProcStdout, *ProcStderr, *Changed:
		return false
	default:
		return true
	}
}

// UnknownResponse is the decoded form of a response whose op is not in
// the closed set.
type UnknownResponse struct {
	RawOp string `cbor:"-"`
}

func (u *UnknownResponse) Op() ResponseOp { return ResponseOp(u.RawOp) }

// Ok acknowledges a request that produces no data.
type Ok struct{}

func (*Ok) Op() ResponseOp { return OpOk }

// Blob carries file bytes for FileRead.
type Blob struct {
	Data []byte `cbor:"data"`
}

func (*Blob) Op() ResponseOp { return OpBlob }

// Text carries file text for FileReadText.
type Text struct {
	Text string `cbor:"text"`
}

func (*Text) Op() ResponseOp { return OpText }

// DirEntries answers DirRead: the entries found plus any per-entry
// errors encountered while walking (unreadable subdirectories do not
// fail the whole listing).
type DirEntries struct {
	Entries []DirEntry `cbor:"entries"`
	Errors  []Error    `cbor:"errors"`
}

func (*DirEntries) Op() ResponseOp { return OpDirEntries }

// ExistsResult answers Exists.
type ExistsResult struct {
	Value bool `cbor:"value"`
}

func (*ExistsResult) Op() ResponseOp { return OpExistsResult }

// Unwatched is the terminal marker on a watch stream after an explicit
// Unwatch.
type Unwatched struct{}

func (*Unwatched) Op() ResponseOp { return OpUnwatched }

// ProcSpawned opens a process response stream with the spawned
// process's identifiers. ID is the process id allocated by the process
// manager, unique across the server's connections; Pid is the OS
// process id.
type ProcSpawned struct {
	ID  uint64 `cbor:"id"`
	Pid int    `cbor:"pid"`
}

func (*ProcSpawned) Op() ResponseOp { return OpProcSpawned }

// ProcStdout carries one chunk of child stdout.
type ProcStdout struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

func (*ProcStdout) Op() ResponseOp { return OpProcStdout }

// ProcStderr carries one chunk of child stderr.
type ProcStderr struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

func (*ProcStderr) Op() ResponseOp { return OpProcStderr }

// ProcDone is the terminal payload of a process stream.
type ProcDone struct {
	ID      uint64 `cbor:"id"`
	Success bool   `cbor:"success"`

	// Code is the exit code, absent when the process was terminated
	// by a signal.
	Code *int `cbor:"code,omitempty"`

	// Signal names the terminating signal (e.g. "SIGKILL"), absent on
	// normal exit.
	Signal string `cbor:"signal,omitempty"`
}

func (*ProcDone) Op() ResponseOp { return OpProcDone }

// ProcEntry describes one live process in a ProcEntries listing.
type ProcEntry struct {
	ID      uint64   `cbor:"id"`
	Cmd     string   `cbor:"cmd"`
	Args    []string `cbor:"args,omitempty"`
	Persist bool     `cbor:"persist,omitempty"`
	Pty     *PtySize `cbor:"pty,omitempty"`
}

// ProcEntries answers ProcList.
type ProcEntries struct {
	Entries []ProcEntry `cbor:"entries"`
}

func (*ProcEntries) Op() ResponseOp { return OpProcEntries }

// SystemInfo answers SystemInfoRequest.
type SystemInfo struct {
	// Family is "unix" or "windows".
	Family string `cbor:"family"`

	// OS is the runtime operating system (e.g. "linux", "darwin").
	OS string `cbor:"os"`

	// Arch is the processor architecture (e.g. "amd64", "arm64").
	Arch string `cbor:"arch"`

	// CurrentDir is the server process's working directory.
	CurrentDir string `cbor:"current_dir"`

	// MainSeparator is the path separator ("/" or "\\").
	MainSeparator string `cbor:"main_separator"`

	// Username is the account the server runs as, when resolvable.
	Username string `cbor:"username,omitempty"`

	// Shell is the account's login shell, when known.
	Shell string `cbor:"shell,omitempty"`
}

func (*SystemInfo) Op() ResponseOp { return OpSystemInfoRes }
