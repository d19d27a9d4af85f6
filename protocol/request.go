// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/outpost/lib/codec"
)

// RequestOp names a request operation. Op values are wire constants.
type RequestOp string

const (
	OpFileRead       RequestOp = "file-read"
	OpFileReadText   RequestOp = "file-read-text"
	OpFileWrite      RequestOp = "file-write"
	OpFileWriteText  RequestOp = "file-write-text"
	OpFileAppend     RequestOp = "file-append"
	OpFileAppendText RequestOp = "file-append-text"
	OpDirRead        RequestOp = "dir-read"
	OpDirCreate      RequestOp = "dir-create"
	OpRemove         RequestOp = "remove"
	OpCopy           RequestOp = "copy"
	OpRename         RequestOp = "rename"
	OpExists         RequestOp = "exists"
	OpMetadata       RequestOp = "metadata"
	OpWatch          RequestOp = "watch"
	OpUnwatch        RequestOp = "unwatch"
	OpProcSpawn      RequestOp = "proc-spawn"
	OpProcStdin      RequestOp = "proc-stdin"
	OpProcResizePty  RequestOp = "proc-resize-pty"
	OpProcKill       RequestOp = "proc-kill"
	OpProcList       RequestOp = "proc-list"
	OpSystemInfo     RequestOp = "system-info"
	OpBatch          RequestOp = "batch"
)

// RequestArgs is implemented by every request payload type.
type RequestArgs interface {
	Op() RequestOp
}

// Request is the client-to-server envelope.
type Request struct {
	// ID is unique per session, monotonically allocated by the client.
	ID uint64

	// Tenant is a free-form client label, echoed back on responses.
	Tenant string

	// Payload is the operation to perform.
	Payload RequestArgs
}

// requestWire is the CBOR shape of a Request.
type requestWire struct {
	ID      uint64      `cbor:"id"`
	Tenant  string      `cbor:"tenant,omitempty"`
	Payload payloadWire `cbor:"payload"`
}

// payloadWire is the adjacent-tagged union shape shared by request and
// response payloads: the operation name plus its raw argument map.
type payloadWire struct {
	Op   string           `cbor:"op"`
	Args codec.RawMessage `cbor:"args,omitempty"`
}

// MarshalCBOR encodes the envelope with its adjacent-tagged payload.
func (r Request) MarshalCBOR() ([]byte, error) {
	payload, err := marshalRequestArgs(r.Payload)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(requestWire{ID: r.ID, Tenant: r.Tenant, Payload: payload})
}

// UnmarshalCBOR decodes the envelope. An unknown op decodes to
// UnknownRequest rather than failing, so the dispatcher can answer it
// with a protocol error instead of tearing the connection down.
func (r *Request) UnmarshalCBOR(data []byte) error {
	var wire requestWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := unmarshalRequestArgs(wire.Payload)
	if err != nil {
		return err
	}
	r.ID = wire.ID
	r.Tenant = wire.Tenant
	r.Payload = payload
	return nil
}

func marshalRequestArgs(args RequestArgs) (payloadWire, error) {
	if args == nil {
		return payloadWire{}, fmt.Errorf("request payload is nil")
	}
	raw, err := codec.Marshal(args)
	if err != nil {
		return payloadWire{}, fmt.Errorf("encoding %s args: %w", args.Op(), err)
	}
	return payloadWire{Op: string(args.Op()), Args: raw}, nil
}

func unmarshalRequestArgs(wire payloadWire) (RequestArgs, error) {
	args := newRequestArgs(RequestOp(wire.Op))
	if args == nil {
		return &UnknownRequest{RawOp: wire.Op}, nil
	}
	if len(wire.Args) > 0 {
		if err := codec.Unmarshal(wire.Args, args); err != nil {
			return nil, fmt.Errorf("decoding %s args: %w", wire.Op, err)
		}
	}
	return args, nil
}

// newRequestArgs returns a zero value for the given op, or nil when
// the op is not part of the closed request set.
func newRequestArgs(op RequestOp) RequestArgs {
	switch op {
	case OpFileRead:
		return &FileRead{}
	case OpFileReadText:
		return &FileReadText{}
	case OpFileWrite:
		return &FileWrite{}
	case OpFileWriteText:
		return &FileWriteText{}
	case OpFileAppend:
		return &FileAppend{}
	case OpFileAppendText:
		return &FileAppendText{}
	case OpDirRead:
		return &DirRead{}
	case OpDirCreate:
		return &DirCreate{}
	case OpRemove:
		return &Remove{}
	case OpCopy:
		return &Copy{}
	case OpRename:
		return &Rename{}
	case OpExists:
		return &Exists{}
	case OpMetadata:
		return &MetadataRequest{}
	case OpWatch:
		return &Watch{}
	case OpUnwatch:
		return &Unwatch{}
	case OpProcSpawn:
		return &ProcSpawn{}
	case OpProcStdin:
		return &ProcStdin{}
	case OpProcResizePty:
		return &ProcResizePty{}
	case OpProcKill:
		return &ProcKill{}
	case OpProcList:
		return &ProcList{}
	case OpSystemInfo:
		return &SystemInfoRequest{}
	case OpBatch:
		return &Batch{}
	default:
		return nil
	}
}

// UnknownRequest is the decoded form of a request whose op is not in
// the closed set. It never appears on the wire outbound; the
// dispatcher answers it with a protocol error.
type UnknownRequest struct {
	RawOp string `cbor:"-"`
}

func (u *UnknownRequest) Op() RequestOp { return RequestOp(u.RawOp) }

// FileRead reads a file's bytes. Answered by Blob or Error.
type FileRead struct {
	Path string `cbor:"path"`
}

func (*FileRead) Op() RequestOp { return OpFileRead }

// FileReadText reads a file as UTF-8 text. Answered by Text or Error.
type FileReadText struct {
	Path string `cbor:"path"`
}

func (*FileReadText) Op() RequestOp { return OpFileReadText }

// FileWrite replaces a file's contents with bytes.
type FileWrite struct {
	Path string `cbor:"path"`
	Data []byte `cbor:"data"`
}

func (*FileWrite) Op() RequestOp { return OpFileWrite }

// FileWriteText replaces a file's contents with text.
type FileWriteText struct {
	Path string `cbor:"path"`
	Text string `cbor:"text"`
}

func (*FileWriteText) Op() RequestOp { return OpFileWriteText }

// FileAppend appends bytes to a file, creating it if absent.
type FileAppend struct {
	Path string `cbor:"path"`
	Data []byte `cbor:"data"`
}

func (*FileAppend) Op() RequestOp { return OpFileAppend }

// FileAppendText appends text to a file, creating it if absent.
type FileAppendText struct {
	Path string `cbor:"path"`
	Text string `cbor:"text"`
}

func (*FileAppendText) Op() RequestOp { return OpFileAppendText }

// DirRead lists directory entries. Answered by DirEntries.
type DirRead struct {
	Path string `cbor:"path"`

	// Depth limits recursion: 1 (the default when zero) lists only
	// direct children; 0 on the wire means unset. Negative depth is
	// invalid input.
	Depth int `cbor:"depth,omitempty"`

	// Absolute reports entry paths absolute instead of relative to
	// the requested root.
	Absolute bool `cbor:"absolute,omitempty"`

	// Canonicalize resolves symlinks in reported entry paths.
	Canonicalize bool `cbor:"canonicalize,omitempty"`

	// IncludeRoot includes the requested root itself as the first
	// entry.
	IncludeRoot bool `cbor:"include_root,omitempty"`
}

func (*DirRead) Op() RequestOp { return OpDirRead }

// DirCreate creates a directory. All creates missing parents as well.
type DirCreate struct {
	Path string `cbor:"path"`
	All  bool   `cbor:"all,omitempty"`
}

func (*DirCreate) Op() RequestOp { return OpDirCreate }

// Remove deletes a file or directory. Force removes non-empty
// directories recursively.
type Remove struct {
	Path  string `cbor:"path"`
	Force bool   `cbor:"force,omitempty"`
}

func (*Remove) Op() RequestOp { return OpRemove }

// Copy duplicates a file or directory tree.
type Copy struct {
	Src string `cbor:"src"`
	Dst string `cbor:"dst"`
}

func (*Copy) Op() RequestOp { return OpCopy }

// Rename moves a file or directory.
type Rename struct {
	Src string `cbor:"src"`
	Dst string `cbor:"dst"`
}

func (*Rename) Op() RequestOp { return OpRename }

// Exists checks whether a path exists. Answered by ExistsResult.
type Exists struct {
	Path string `cbor:"path"`
}

func (*Exists) Op() RequestOp { return OpExists }

// MetadataRequest queries metadata about a path. Answered by Metadata.
type MetadataRequest struct {
	Path string `cbor:"path"`

	// Canonicalize includes the symlink-resolved path in the result.
	Canonicalize bool `cbor:"canonicalize,omitempty"`

	// ResolveFileType reports the type of a symlink's target instead
	// of "symlink".
	ResolveFileType bool `cbor:"resolve_file_type,omitempty"`
}

func (*MetadataRequest) Op() RequestOp { return OpMetadata }

// Watch establishes a change stream for a path. The stream carries
// Changed responses until Unwatch or a watcher error.
type Watch struct {
	Path string `cbor:"path"`

	// Recursive watches the whole tree under a directory. Meaningless
	// on a file and ignored there.
	Recursive bool `cbor:"recursive,omitempty"`

	// Only restricts emission to the listed change kinds. Empty means
	// all kinds.
	Only []ChangeKind `cbor:"only,omitempty"`

	// Except suppresses the listed change kinds. Applied after Only.
	Except []ChangeKind `cbor:"except,omitempty"`
}

func (*Watch) Op() RequestOp { return OpWatch }

// Unwatch ends the stream established by the most recent Watch of the
// same path on the same connection.
type Unwatch struct {
	Path string `cbor:"path"`
}

func (*Unwatch) Op() RequestOp { return OpUnwatch }

// PtySize describes pseudo-terminal dimensions.
type PtySize struct {
	Rows uint16 `cbor:"rows"`
	Cols uint16 `cbor:"cols"`
}

// ProcSpawn starts a child process. The response stream carries
// ProcSpawned, then interleaved ProcStdout/ProcStderr, then a terminal
// ProcDone.
type ProcSpawn struct {
	Cmd  string            `cbor:"cmd"`
	Args []string          `cbor:"args,omitempty"`
	Env  map[string]string `cbor:"env,omitempty"`
	Cwd  string            `cbor:"cwd,omitempty"`

	// Persist decouples the process lifetime from the connection that
	// spawned it.
	Persist bool `cbor:"persist,omitempty"`

	// Pty attaches the process to a pseudo-terminal of the given size
	// instead of plain pipes.
	Pty *PtySize `cbor:"pty,omitempty"`
}

func (*ProcSpawn) Op() RequestOp { return OpProcSpawn }

// ProcStdin feeds bytes to a spawned process's stdin.
type ProcStdin struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

func (*ProcStdin) Op() RequestOp { return OpProcStdin }

// ProcResizePty adjusts a PTY-backed process's window size.
type ProcResizePty struct {
	ID   uint64 `cbor:"id"`
	Rows uint16 `cbor:"rows"`
	Cols uint16 `cbor:"cols"`
}

func (*ProcResizePty) Op() RequestOp { return OpProcResizePty }

// ProcKill signals a spawned process to terminate. The process's own
// stream emits the terminal ProcDone.
type ProcKill struct {
	ID uint64 `cbor:"id"`
}

func (*ProcKill) Op() RequestOp { return OpProcKill }

// ProcList enumerates live processes owned by the server. Answered by
// ProcEntries.
type ProcList struct{}

func (*ProcList) Op() RequestOp { return OpProcList }

// SystemInfoRequest queries host information. Answered by SystemInfo.
type SystemInfoRequest struct{}

func (*SystemInfoRequest) Op() RequestOp { return OpSystemInfo }

// Batch carries a list of sub-payloads. The dispatcher emits one
// response per sub-payload, in input order. Streaming operations are
// rejected inside batches so a batch always terminates.
type Batch struct {
	Payloads []RequestArgs
}

func (*Batch) Op() RequestOp { return OpBatch }

// batchWire is the CBOR shape of Batch args.
type batchWire struct {
	Payloads []payloadWire `cbor:"payloads"`
}

// MarshalCBOR encodes each sub-payload with its own op tag.
func (b *Batch) MarshalCBOR() ([]byte, error) {
	wire := batchWire{Payloads: make([]payloadWire, 0, len(b.Payloads))}
	for index, payload := range b.Payloads {
		encoded, err := marshalRequestArgs(payload)
		if err != nil {
			return nil, fmt.Errorf("batch payload %d: %w", index, err)
		}
		wire.Payloads = append(wire.Payloads, encoded)
	}
	return codec.Marshal(wire)
}

// UnmarshalCBOR decodes each sub-payload through the request union.
func (b *Batch) UnmarshalCBOR(data []byte) error {
	var wire batchWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Payloads = make([]RequestArgs, 0, len(wire.Payloads))
	for index, encoded := range wire.Payloads {
		payload, err := unmarshalRequestArgs(encoded)
		if err != nil {
			return fmt.Errorf("batch payload %d: %w", index, err)
		}
		b.Payloads = append(b.Payloads, payload)
	}
	return nil
}
