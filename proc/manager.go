// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/outpost/protocol"
)

// DefaultChunkSize is the per-response output chunk size: 64 KiB, the
// protocol maximum.
const DefaultChunkSize = 64 * 1024

// Manager owns every process spawned by this server.
type Manager struct {
	logger    *slog.Logger
	chunkSize int

	nextID atomic.Uint64

	mu        sync.Mutex
	processes map[uint64]*Process
}

// NewManager creates a process manager. chunkSize zero means
// DefaultChunkSize; larger values are capped to it.
func NewManager(logger *slog.Logger, chunkSize int) *Manager {
	if chunkSize <= 0 || chunkSize > DefaultChunkSize {
		chunkSize = DefaultChunkSize
	}
	return &Manager{
		logger:    logger,
		chunkSize: chunkSize,
		processes: make(map[uint64]*Process),
	}
}

// Spawn starts a child process for the given connection. The emit
// callback receives the process's whole stream: ProcSpawned first,
// then output chunks, then the terminal ProcDone, after which the
// record is removed.
func (m *Manager) Spawn(owner uint64, spec protocol.ProcSpawn, emit Emit) (*Process, error) {
	if spec.Cmd == "" {
		return nil, protocol.NewError(protocol.KindInvalidInput, "proc-spawn requires cmd")
	}

	process := &Process{
		id:    m.nextID.Add(1),
		owner: owner,
		spec:  spec,
		stdin: newStdinQueue(),
		emit:  emit,
		done:  make(chan struct{}),
	}

	m.mu.Lock()
	m.processes[process.id] = process
	m.mu.Unlock()

	if err := process.start(m.chunkSize, m.remove); err != nil {
		m.mu.Lock()
		delete(m.processes, process.id)
		m.mu.Unlock()
		return nil, err
	}

	m.logger.Info("spawned process",
		"process_id", process.id,
		"pid", process.pid,
		"cmd", spec.Cmd,
		"persist", spec.Persist,
		"pty", spec.Pty != nil)
	return process, nil
}

// remove drops an exited process from the registry. Called by the
// exit waiter after the done event has been delivered.
func (m *Manager) remove(process *Process) {
	m.mu.Lock()
	delete(m.processes, process.id)
	m.mu.Unlock()
	m.logger.Info("process exited", "process_id", process.id, "pid", process.pid)
}

func (m *Manager) lookup(id uint64) (*Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	process, ok := m.processes[id]
	if !ok {
		return nil, protocol.NewError(protocol.KindNotFound, "no process with id %d", id)
	}
	return process, nil
}

// WriteStdin appends bytes to the child's stdin queue. Non-blocking;
// safe to call from a connection's reader loop, which is what
// preserves wire arrival order.
func (m *Manager) WriteStdin(id uint64, data []byte) error {
	process, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := process.stdin.push(data); err != nil {
		return protocol.NewError(protocol.KindBrokenPipe, "process %d stdin: %v", id, err)
	}
	return nil
}

// Resize adjusts a PTY-backed process's window size.
func (m *Manager) Resize(id uint64, rows, cols uint16) error {
	process, err := m.lookup(id)
	if err != nil {
		return err
	}
	return process.resize(rows, cols)
}

// Kill signals the child to terminate. The terminal done event
// arrives on the process's own stream, not on the kill request's.
func (m *Manager) Kill(id uint64) error {
	process, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := process.signalKill(); err != nil {
		return fmt.Errorf("killing process %d: %w", id, err)
	}
	return nil
}

// List returns the live processes, sorted by id. Includes processes
// owned by other connections iff they are persistent.
func (m *Manager) List(owner uint64) []protocol.ProcEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]protocol.ProcEntry, 0, len(m.processes))
	for _, process := range m.processes {
		if process.owner != owner && !process.spec.Persist {
			continue
		}
		entries = append(entries, process.entry())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// ReleaseConnection handles a connection closing: its non-persistent
// processes are killed, its persistent ones detached (they keep
// running; their output is dropped from now on).
func (m *Manager) ReleaseConnection(owner uint64) {
	m.mu.Lock()
	var owned []*Process
	for _, process := range m.processes {
		if process.owner == owner {
			owned = append(owned, process)
		}
	}
	m.mu.Unlock()

	for _, process := range owned {
		if process.spec.Persist {
			process.detach()
			m.logger.Info("detached persistent process",
				"process_id", process.id, "pid", process.pid)
			continue
		}
		process.detach()
		if err := process.signalKill(); err != nil {
			m.logger.Warn("killing orphaned process",
				"process_id", process.id, "error", err)
		}
	}
}

// Shutdown kills every remaining process, persistent or not. Used at
// server exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var all []*Process
	for _, process := range m.processes {
		all = append(all, process)
	}
	m.mu.Unlock()

	for _, process := range all {
		process.detach()
		if err := process.signalKill(); err != nil {
			m.logger.Warn("killing process at shutdown",
				"process_id", process.id, "error", err)
		}
	}
}
