// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/outpost/protocol"
)

// ErrMailboxClosed is returned by Next after Close. Responses still
// queued at Close are discarded, not drained.
var ErrMailboxClosed = errors.New("session: mailbox closed")

// Mailbox is the bounded per-request response queue. The session's
// reader goroutine appends; the requesting caller drains with Next.
type Mailbox struct {
	id     uint64
	remove func(uint64)

	mu       sync.Mutex
	queue    []*protocol.Response
	capacity int
	evicted  uint64
	closed   bool
	failure  error

	// signal wakes one pending Next. Capacity 1: deliveries collapse.
	signal chan struct{}
}

func newMailbox(id uint64, capacity int, remove func(uint64)) *Mailbox {
	return &Mailbox{
		id:       id,
		remove:   remove,
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// ID returns the request id this mailbox is keyed by.
func (m *Mailbox) ID() uint64 { return m.id }

// deliver appends a response, evicting the oldest undelivered one when
// the mailbox is full. Never blocks. Reports whether an eviction
// occurred so the reader can log it.
func (m *Mailbox) deliver(response *protocol.Response) (evicted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	if len(m.queue) >= m.capacity {
		copy(m.queue, m.queue[1:])
		m.queue = m.queue[:len(m.queue)-1]
		m.evicted++
		evicted = true
	}
	m.queue = append(m.queue, response)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return evicted
}

// fail marks the mailbox dead with a transport-level error. Queued
// responses remain drainable; after them, Next returns err.
func (m *Mailbox) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure == nil {
		m.failure = err
	}
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Next returns the next response for this request, blocking until one
// arrives, the context is cancelled, the mailbox is closed, or the
// transport dies. Single-consumer.
func (m *Mailbox) Next(ctx context.Context) (*protocol.Response, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			response := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return response, nil
		}
		if m.failure != nil {
			err := m.failure
			m.mu.Unlock()
			return nil, err
		}
		if m.closed {
			m.mu.Unlock()
			return nil, ErrMailboxClosed
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.signal:
		}
	}
}

// Close drops the mailbox: it is unregistered from the post office and
// the reader stops delivering to it. Queued but undrained responses
// are discarded. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.mu.Unlock()

	m.remove(m.id)

	select {
	case m.signal <- struct{}{}:
	default:
	}
}
