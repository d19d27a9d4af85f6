// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/outpost/lib/clock"
	"github.com/bureau-foundation/outpost/protocol"
)

// Emit delivers one response payload on the watching request's stream.
// Implementations must be safe for concurrent use.
type Emit func(payload protocol.ResponseArgs)

// Options configures a watch manager.
type Options struct {
	// DebounceWindow coalesces events per path. Zero means
	// DefaultDebounceWindow; negative disables debouncing.
	DebounceWindow time.Duration

	// ForcePolling uses the polling backend even where a native one
	// exists.
	ForcePolling bool

	// PollInterval is the polling backend's scan interval. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// Clock drives debounce windows and the polling scanner. Nil
	// means the real clock.
	Clock clock.Clock

	// Logger receives watch lifecycle diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// watchKey identifies a watch: the owning connection plus the watched
// path. A second watch of the same path on the same connection stacks;
// unwatch ends the most recent.
type watchKey struct {
	owner uint64
	path  string
}

// record is one live watch.
type record struct {
	key     watchKey
	backend backend
	filter  protocol.KindFilter

	// emitMu guards emit: a connection that closes mid-stream
	// detaches its watches by swapping in a no-op.
	emitMu sync.Mutex
	emit   Emit

	done chan struct{}
}

func (r *record) deliver(payload protocol.ResponseArgs) {
	r.emitMu.Lock()
	emit := r.emit
	r.emitMu.Unlock()
	if emit != nil {
		emit(payload)
	}
}

func (r *record) detach() {
	r.emitMu.Lock()
	r.emit = nil
	r.emitMu.Unlock()
}

// Manager owns every watch established on this server.
type Manager struct {
	options Options
	logger  *slog.Logger
	clk     clock.Clock

	mu      sync.Mutex
	watches map[watchKey][]*record
}

// NewManager creates a watch manager.
func NewManager(options Options) *Manager {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.DebounceWindow == 0 {
		options.DebounceWindow = DefaultDebounceWindow
	}
	return &Manager{
		options: options,
		logger:  options.Logger,
		clk:     options.Clock,
		watches: make(map[watchKey][]*record),
	}
}

// Watch establishes a change stream for the path. The emit callback
// receives Changed payloads (filtered and debounced) until Unwatch —
// which appends the terminal Unwatched marker — or a backend failure,
// which appends a terminal error payload.
func (m *Manager) Watch(owner uint64, spec protocol.Watch, emit Emit) error {
	if spec.Path == "" {
		return protocol.NewError(protocol.KindInvalidInput, "watch requires path")
	}

	b, err := m.newBackend(spec.Path, spec.Recursive)
	if err != nil {
		return err
	}

	r := &record{
		key:     watchKey{owner: owner, path: spec.Path},
		backend: b,
		emit:    emit,
		filter:  protocol.NewKindFilter(spec.Only, spec.Except),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	m.watches[r.key] = append(m.watches[r.key], r)
	m.mu.Unlock()

	m.logger.Info("watch established",
		"path", spec.Path, "recursive", spec.Recursive, "owner", owner)

	go m.pump(r)
	return nil
}

// newBackend picks the native backend unless polling is forced or the
// platform has none.
func (m *Manager) newBackend(path string, recursive bool) (backend, error) {
	if !m.options.ForcePolling && nativeAvailable {
		return newNativeBackend(path, recursive)
	}
	return newPollBackend(path, recursive, m.options.PollInterval, m.clk)
}

// pump runs one watch's event path: backend → debouncer → filter →
// emit. Exits when the backend's channel closes; if the backend
// failed, the stream gets a terminal error payload.
func (m *Manager) pump(r *record) {
	d := newDebouncer(m.clk, m.options.DebounceWindow, func(change protocol.Changed) {
		if !r.filter.Allows(change.Kind) {
			return
		}
		emitted := change
		r.deliver(&emitted)
	})

	d.run(r.backend.Events())

	if err := r.backend.Err(); err != nil {
		m.logger.Warn("watch backend failed", "path", r.key.path, "error", err)
		r.deliver(protocol.ErrorFrom(err))
	}
	m.drop(r)
}

// Unwatch ends the most recent watch of the path on this connection.
// The watch's own stream receives the terminal Unwatched marker once
// its remaining events drain.
func (m *Manager) Unwatch(owner uint64, path string) error {
	key := watchKey{owner: owner, path: path}

	m.mu.Lock()
	stack := m.watches[key]
	if len(stack) == 0 {
		m.mu.Unlock()
		return protocol.NewError(protocol.KindNotFound, "no watch on %s", path)
	}
	r := stack[len(stack)-1]
	m.watches[key] = stack[:len(stack)-1]
	if len(m.watches[key]) == 0 {
		delete(m.watches, key)
	}
	m.mu.Unlock()

	// Stop the backend, wait for the pump to flush the debouncer,
	// then append the terminal marker so it is the stream's last
	// payload.
	r.backend.Close()
	<-r.done
	r.deliver(&protocol.Unwatched{})

	m.logger.Info("watch removed", "path", path, "owner", owner)
	return nil
}

// drop removes a record after its pump exits (backend closed or
// failed). Unwatch removes it from the registry eagerly; this covers
// the failure path.
func (m *Manager) drop(r *record) {
	m.mu.Lock()
	stack := m.watches[r.key]
	for index, candidate := range stack {
		if candidate == r {
			m.watches[r.key] = append(stack[:index], stack[index+1:]...)
			break
		}
	}
	if len(m.watches[r.key]) == 0 {
		delete(m.watches, r.key)
	}
	m.mu.Unlock()
	close(r.done)
}

// ReleaseConnection drops every watch owned by a closing connection.
// No terminal payloads: there is no one left to receive them.
func (m *Manager) ReleaseConnection(owner uint64) {
	m.mu.Lock()
	var owned []*record
	for key, stack := range m.watches {
		if key.owner == owner {
			owned = append(owned, stack...)
		}
	}
	m.mu.Unlock()

	for _, r := range owned {
		r.detach()
		r.backend.Close()
	}
}

// Shutdown closes every watch. Used at server exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var all []*record
	for _, stack := range m.watches {
		all = append(all, stack...)
	}
	m.mu.Unlock()

	for _, r := range all {
		r.backend.Close()
	}
}
