// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/outpost/lib/codec"
	"github.com/bureau-foundation/outpost/lib/netutil"
	"github.com/bureau-foundation/outpost/protocol"
	"github.com/bureau-foundation/outpost/transport"
)

// DefaultMailboxCapacity bounds each request's response queue. A
// hundred responses of headroom absorbs process-output bursts without
// letting one abandoned stream hold the heap hostage.
const DefaultMailboxCapacity = 100

// ErrSessionClosed is returned by Send after the session has been
// closed or the transport has died.
var ErrSessionClosed = errors.New("session: closed")

// Options configures a Session.
type Options struct {
	// Tenant is the free-form label stamped on every request from
	// this session and echoed back on its responses.
	Tenant string

	// MailboxCapacity bounds each per-request mailbox. Zero means
	// DefaultMailboxCapacity.
	MailboxCapacity int

	// Logger receives reader-loop diagnostics (evictions, orphan
	// responses). Nil means slog.Default().
	Logger *slog.Logger
}

// Session is the client-facing object wrapping a transport and a post
// office. It supports many concurrent callers; see package docs for
// the threading model.
type Session struct {
	conn     *transport.Conn
	logger   *slog.Logger
	tenant   string
	capacity int

	post   *postOffice
	queue  *frameQueue
	nextID atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an open framed connection in a Session and starts its
// reader and writer goroutines. The session owns the connection.
func New(conn *transport.Conn, options Options) *Session {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capacity := options.MailboxCapacity
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}

	s := &Session{
		conn:     conn,
		logger:   logger.With("peer", conn.Label()),
		tenant:   options.Tenant,
		capacity: capacity,
		post:     newPostOffice(),
		queue:    newFrameQueue(),
		done:     make(chan struct{}),
	}

	go s.readLoop()
	go s.writeLoop()
	return s
}

// Channel returns a cheap handle sharing this session's transport,
// id space, and post office.
func (s *Session) Channel() *Channel {
	return &Channel{session: s}
}

// Send allocates a request id, registers a mailbox, and enqueues the
// request. The caller drains the returned mailbox and must Close it
// when done with the sequence.
func (s *Session) Send(payload protocol.RequestArgs) (*Mailbox, error) {
	select {
	case <-s.done:
		return nil, ErrSessionClosed
	default:
	}

	id := s.nextID.Add(1)
	request := protocol.Request{ID: id, Tenant: s.tenant, Payload: payload}
	body, err := codec.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding request %d: %w", id, err)
	}

	mailbox := newMailbox(id, s.capacity, s.post.remove)
	s.post.register(mailbox)

	if !s.queue.push(body) {
		mailbox.Close()
		return nil, ErrSessionClosed
	}
	return mailbox, nil
}

// Close tears the session down: the transport closes, both loops
// exit, and every outstanding mailbox fails with ErrSessionClosed.
func (s *Session) Close() error {
	s.shutdown(ErrSessionClosed)
	return nil
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.queue.close()
		s.conn.Close()
		s.post.failAll(cause)
	})
}

// readLoop is the single reader task: it owns the transport's read
// half and delivers each response to the mailbox of its origin id.
// It never blocks on a slow consumer — delivery into a full mailbox
// evicts the oldest entry inside Mailbox.deliver.
func (s *Session) readLoop() {
	for {
		body, err := s.conn.ReadFrame()
		if err != nil {
			if err == io.EOF || netutil.IsExpectedCloseError(err) || errors.Is(err, transport.ErrClosed) {
				s.shutdown(ErrSessionClosed)
			} else {
				s.logger.Error("session read failed", "error", err)
				s.shutdown(fmt.Errorf("session: transport failed: %w", err))
			}
			return
		}

		var response protocol.Response
		if err := codec.Unmarshal(body, &response); err != nil {
			// A malformed envelope means the peers disagree about the
			// protocol; nothing later on this stream can be trusted.
			s.logger.Error("session received undecodable response", "error", err)
			s.shutdown(fmt.Errorf("session: protocol failure: %w", err))
			return
		}

		mailbox, ok := s.post.lookup(response.OriginID)
		if !ok {
			s.logger.Warn("dropping response with no mailbox",
				"origin_id", response.OriginID,
				"op", response.Payload.Op())
			continue
		}
		if mailbox.deliver(&response) {
			s.logger.Warn("mailbox full, evicted oldest response",
				"origin_id", response.OriginID)
		}
	}
}

// writeLoop is the single writer task: the only consumer of the
// transport's write half.
func (s *Session) writeLoop() {
	for {
		body, ok := s.queue.pop(s.done)
		if !ok {
			return
		}
		if err := s.conn.WriteFrame(body); err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				s.logger.Error("session write failed", "error", err)
			}
			s.shutdown(fmt.Errorf("session: transport failed: %w", err))
			return
		}
	}
}

// outstanding reports the number of registered mailboxes. Test hook
// for leak verification.
func (s *Session) outstanding() int { return s.post.size() }
