// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"sync"
	"time"

	"github.com/bureau-foundation/outpost/lib/clock"
	"github.com/bureau-foundation/outpost/protocol"
)

// DefaultDebounceWindow is how long events targeting the same path
// coalesce before one change response is emitted.
const DefaultDebounceWindow = 500 * time.Millisecond

// debouncer coalesces raw events per path within a window. The tick
// loop runs at a quarter of the window and flushes entries whose
// window has elapsed. A window of zero emits immediately.
type debouncer struct {
	clk    clock.Clock
	window time.Duration
	emit   func(protocol.Changed)

	mu      sync.Mutex
	pending map[string]*pendingChange
}

// pendingChange is a change waiting out its debounce window.
type pendingChange struct {
	change   protocol.Changed
	deadline time.Time
}

func newDebouncer(clk clock.Clock, window time.Duration, emit func(protocol.Changed)) *debouncer {
	return &debouncer{
		clk:     clk,
		window:  window,
		emit:    emit,
		pending: make(map[string]*pendingChange),
	}
}

// run consumes raw events until the channel closes, then flushes
// whatever is pending. Call in its own goroutine.
func (d *debouncer) run(events <-chan rawEvent) {
	if d.window <= 0 {
		for event := range events {
			d.emit(d.toChange(event))
		}
		return
	}

	tick := d.window / 4
	if tick <= 0 {
		tick = d.window
	}
	ticker := d.clk.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				d.flushAll()
				return
			}
			d.absorb(event)
		case <-ticker.C:
			d.flushExpired()
		}
	}
}

func (d *debouncer) toChange(event rawEvent) protocol.Changed {
	return protocol.Changed{
		Path:      event.path,
		Kind:      event.kind,
		Timestamp: uint64(d.clk.Now().Unix()),
		Details:   event.details,
	}
}

// absorb merges an event into the pending set. Same-kind repeats and
// modifications following a creation coalesce; an incompatible kind
// flushes the pending change first so ordering per path survives.
func (d *debouncer) absorb(event rawEvent) {
	d.mu.Lock()
	existing, ok := d.pending[event.path]
	if ok {
		if compatible(existing.change.Kind, event.kind) {
			if event.details != nil {
				existing.change.Details = event.details
			}
			d.mu.Unlock()
			return
		}
		delete(d.pending, event.path)
		d.mu.Unlock()
		d.emit(existing.change)
		d.mu.Lock()
	}
	d.pending[event.path] = &pendingChange{
		change:   d.toChange(event),
		deadline: d.clk.Now().Add(d.window),
	}
	d.mu.Unlock()
}

// compatible reports whether a later event may fold into a pending
// one: identical kinds always, and content modification folds into a
// still-pending creation (the client will read the final content
// either way).
func compatible(pending, next protocol.ChangeKind) bool {
	if pending == next {
		return true
	}
	return pending == protocol.ChangeCreated && next == protocol.ChangeModified
}

func (d *debouncer) flushExpired() {
	now := d.clk.Now()

	d.mu.Lock()
	var due []protocol.Changed
	for path, entry := range d.pending {
		if !entry.deadline.After(now) {
			due = append(due, entry.change)
			delete(d.pending, path)
		}
	}
	d.mu.Unlock()

	for _, change := range due {
		d.emit(change)
	}
}

func (d *debouncer) flushAll() {
	d.mu.Lock()
	var remaining []protocol.Changed
	for path, entry := range d.pending {
		remaining = append(remaining, entry.change)
		delete(d.pending, path)
	}
	d.mu.Unlock()

	for _, change := range remaining {
		d.emit(change)
	}
}
