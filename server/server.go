// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/outpost/lib/clock"
	"github.com/bureau-foundation/outpost/lib/codec"
	"github.com/bureau-foundation/outpost/lib/netutil"
	"github.com/bureau-foundation/outpost/proc"
	"github.com/bureau-foundation/outpost/protocol"
	"github.com/bureau-foundation/outpost/transport"
	"github.com/bureau-foundation/outpost/watch"
)

// Options configures a Server.
type Options struct {
	// Logger receives dispatch and lifecycle diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger

	// ProcessChunkSize caps per-response process output chunks. Zero
	// means the 64 KiB default.
	ProcessChunkSize int

	// DebounceWindow coalesces watch events. Zero means the 500ms
	// default.
	DebounceWindow time.Duration

	// ForcePolling uses the polling watch backend even where a native
	// one exists.
	ForcePolling bool

	// PollInterval is the polling backend's scan interval.
	PollInterval time.Duration

	// Clock drives watch debouncing. Nil means the real clock.
	Clock clock.Clock
}

// Server executes Outpost requests arriving on framed connections.
// One Server handles many connections; the process and watch managers
// are shared so persistent processes outlive their connection.
type Server struct {
	logger    *slog.Logger
	processes *proc.Manager
	watches   *watch.Manager

	connSequence atomic.Uint64
}

// New creates a Server.
func New(options Options) *Server {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:    logger,
		processes: proc.NewManager(logger, options.ProcessChunkSize),
		watches: watch.NewManager(watch.Options{
			DebounceWindow: options.DebounceWindow,
			ForcePolling:   options.ForcePolling,
			PollInterval:   options.PollInterval,
			Clock:          options.Clock,
			Logger:         logger,
		}),
	}
}

// Shutdown releases server-wide resources: every process (persistent
// included) is killed and every watch closed.
func (s *Server) Shutdown() {
	s.processes.Shutdown()
	s.watches.Shutdown()
}

// HandleConn runs one connection's dispatch loop until the peer
// disconnects, the context is cancelled, or a protocol failure tears
// the connection down. Pass it to transport.Listener.Serve.
func (s *Server) HandleConn(ctx context.Context, conn *transport.Conn) {
	connID := s.connSequence.Add(1)
	logger := s.logger.With("conn", connID, "peer", conn.Label())
	logger.Info("connection opened")

	// responseSequence allocates Response.ID values for this
	// connection, shared by every reply handle on it.
	responseSequence := &atomic.Uint64{}

	var inFlight sync.WaitGroup
	defer func() {
		conn.Close()
		inFlight.Wait()
		s.processes.ReleaseConnection(connID)
		s.watches.ReleaseConnection(connID)
		logger.Info("connection closed")
	}()

	// A cancelled context closes the connection, which unblocks the
	// read loop below.
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	for {
		body, err := conn.ReadFrame()
		if err != nil {
			if err != io.EOF && !errors.Is(err, transport.ErrClosed) && !netutil.IsExpectedCloseError(err) {
				logger.Warn("connection read failed", "error", err)
			}
			return
		}

		var request protocol.Request
		if err := codec.Unmarshal(body, &request); err != nil {
			// Malformed CBOR is a per-connection failure: the peers
			// no longer agree on the stream.
			logger.Error("undecodable request, closing connection", "error", err)
			return
		}

		reply := Reply{
			conn:     conn,
			logger:   logger,
			sequence: responseSequence,
			originID: request.ID,
			tenant:   request.Tenant,
		}

		// proc-stdin is enqueued synchronously so stdin bytes reach
		// the child in wire arrival order; the enqueue never blocks.
		if stdin, ok := request.Payload.(*protocol.ProcStdin); ok {
			err := s.processes.WriteStdin(stdin.ID, stdin.Data)
			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				if err != nil {
					reply.Send(protocol.ErrorFrom(err))
				} else {
					reply.Send(&protocol.Ok{})
				}
			}()
			continue
		}

		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			s.dispatch(connID, request, reply)
		}()
	}
}

// dispatch executes one request and emits its immediate response(s).
// Streaming requests wire the reply handle into the owning manager
// and return; the manager keeps the stream alive from there.
func (s *Server) dispatch(connID uint64, request protocol.Request, reply Reply) {
	if batch, ok := request.Payload.(*protocol.Batch); ok {
		// Sub-payloads run sequentially: response order matches
		// sub-payload index order, and one failure does not abort the
		// rest. Streaming operations are rejected so a batch always
		// terminates after exactly one response per sub-payload.
		for _, payload := range batch.Payloads {
			switch payload.(type) {
			case *protocol.ProcSpawn, *protocol.Watch:
				reply.Send(protocol.NewError(protocol.KindInvalidInput,
					"streaming op %s is not allowed in a batch", payload.Op()))
			default:
				reply.Send(s.execute(connID, payload, reply))
			}
		}
		return
	}

	if payload := s.execute(connID, request.Payload, reply); payload != nil {
		reply.Send(payload)
	}
}

// execute runs one payload to its first response. A nil return means
// a streaming operation took ownership of the reply handle and its
// responses arrive from the manager.
func (s *Server) execute(connID uint64, payload protocol.RequestArgs, reply Reply) protocol.ResponseArgs {
	result, err := s.executeOp(connID, payload, reply)
	if err != nil {
		return protocol.ErrorFrom(err)
	}
	return result
}

func (s *Server) executeOp(connID uint64, payload protocol.RequestArgs, reply Reply) (protocol.ResponseArgs, error) {
	switch args := payload.(type) {
	case *protocol.FileRead:
		return fileRead(args.Path)
	case *protocol.FileReadText:
		return fileReadText(args.Path)
	case *protocol.FileWrite:
		return fileWrite(args.Path, args.Data)
	case *protocol.FileWriteText:
		return fileWrite(args.Path, []byte(args.Text))
	case *protocol.FileAppend:
		return fileAppend(args.Path, args.Data)
	case *protocol.FileAppendText:
		return fileAppend(args.Path, []byte(args.Text))
	case *protocol.DirRead:
		return dirRead(args)
	case *protocol.DirCreate:
		return dirCreate(args)
	case *protocol.Remove:
		return remove(args)
	case *protocol.Copy:
		return copyPath(args)
	case *protocol.Rename:
		return rename(args)
	case *protocol.Exists:
		return exists(args.Path)
	case *protocol.MetadataRequest:
		return metadata(args)
	case *protocol.SystemInfoRequest:
		return systemInfo()

	case *protocol.Watch:
		if err := s.watches.Watch(connID, *args, watch.Emit(reply.Send)); err != nil {
			return nil, err
		}
		return nil, nil
	case *protocol.Unwatch:
		if err := s.watches.Unwatch(connID, args.Path); err != nil {
			return nil, err
		}
		return &protocol.Ok{}, nil

	case *protocol.ProcSpawn:
		if _, err := s.processes.Spawn(connID, *args, proc.Emit(reply.Send)); err != nil {
			return nil, err
		}
		return nil, nil
	case *protocol.ProcResizePty:
		if err := s.processes.Resize(args.ID, args.Rows, args.Cols); err != nil {
			return nil, err
		}
		return &protocol.Ok{}, nil
	case *protocol.ProcKill:
		if err := s.processes.Kill(args.ID); err != nil {
			return nil, err
		}
		return &protocol.Ok{}, nil
	case *protocol.ProcList:
		return &protocol.ProcEntries{Entries: s.processes.List(connID)}, nil

	case *protocol.ProcStdin:
		// Batch sub-payload path; the top-level path handles stdin in
		// the reader loop.
		if err := s.processes.WriteStdin(args.ID, args.Data); err != nil {
			return nil, err
		}
		return &protocol.Ok{}, nil

	case *protocol.Batch:
		return nil, protocol.NewError(protocol.KindInvalidInput, "batch payloads do not nest")

	case *protocol.UnknownRequest:
		return nil, protocol.NewError(protocol.KindProtocol, "unknown request op %q", args.RawOp)

	default:
		return nil, protocol.NewError(protocol.KindProtocol, "unhandled request op %q", payload.Op())
	}
}
