// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bureau-foundation/outpost/lib/clock"
	"github.com/bureau-foundation/outpost/protocol"
)

// DefaultPollInterval is the scan interval for the polling backend.
const DefaultPollInterval = time.Second

// pollState is one snapshot entry.
type pollState struct {
	modTime time.Time
	size    int64
	mode    fs.FileMode
	isDir   bool
}

// pollBackend watches by periodically scanning the tree and diffing
// snapshots. The fallback where no native backend exists, and the
// explicit choice for filesystems where inotify lies (network
// mounts).
type pollBackend struct {
	root      string
	recursive bool
	interval  time.Duration
	clk       clock.Clock

	events chan rawEvent

	mu      sync.Mutex
	failure error

	stop     chan struct{}
	stopOnce sync.Once
}

// newPollBackend creates a polling backend for the path.
func newPollBackend(root string, recursive bool, interval time.Duration, clk clock.Clock) (backend, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	b := &pollBackend{
		root:      root,
		recursive: recursive,
		interval:  interval,
		clk:       clk,
		events:    make(chan rawEvent, 64),
		stop:      make(chan struct{}),
	}

	// The baseline is taken before returning so that changes made after
	// the watch is established are diffed against it.
	previous, err := b.snapshot()
	if err != nil {
		return nil, err
	}
	go b.scanLoop(previous)
	return b, nil
}

func (b *pollBackend) Events() <-chan rawEvent { return b.events }

func (b *pollBackend) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

func (b *pollBackend) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	return nil
}

func (b *pollBackend) scanLoop(previous map[string]pollState) {
	defer close(b.events)

	ticker := b.clk.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		current, err := b.snapshot()
		if err != nil {
			// The watched root itself vanished or became unreadable:
			// report removals for what we knew, then fail.
			if os.IsNotExist(err) {
				for path := range previous {
					b.send(rawEvent{path: path, kind: protocol.ChangeRemoved})
				}
			}
			b.mu.Lock()
			b.failure = err
			b.mu.Unlock()
			return
		}

		b.diff(previous, current)
		previous = current
	}
}

// snapshot records the watched path's current state. For a recursive
// directory watch the whole tree is walked; otherwise only the root
// and (for directories) its direct children.
func (b *pollBackend) snapshot() (map[string]pollState, error) {
	states := make(map[string]pollState)

	rootInfo, err := os.Stat(b.root)
	if err != nil {
		return nil, err
	}
	states[b.root] = stateOf(rootInfo)

	if !rootInfo.IsDir() {
		return states, nil
	}

	if b.recursive {
		filepath.WalkDir(b.root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil || path == b.root {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return nil
			}
			states[path] = stateOf(info)
			return nil
		})
		return states, nil
	}

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		states[filepath.Join(b.root, entry.Name())] = stateOf(info)
	}
	return states, nil
}

func stateOf(info fs.FileInfo) pollState {
	return pollState{
		modTime: info.ModTime(),
		size:    info.Size(),
		mode:    info.Mode(),
		isDir:   info.IsDir(),
	}
}

// diff emits events for every difference between two snapshots.
func (b *pollBackend) diff(previous, current map[string]pollState) {
	for path, before := range previous {
		now, exists := current[path]
		if !exists {
			b.send(rawEvent{path: path, kind: protocol.ChangeRemoved})
			continue
		}
		if now.mode.Perm() != before.mode.Perm() {
			b.send(rawEvent{
				path: path,
				kind: protocol.ChangeAttribute,
				details: &protocol.ChangeDetails{
					Attribute: protocol.AttributePermissions,
				},
			})
		}
		if !now.isDir && (now.size != before.size || !now.modTime.Equal(before.modTime)) {
			b.send(rawEvent{path: path, kind: protocol.ChangeModified})
		}
	}
	for path := range current {
		if _, existed := previous[path]; !existed {
			b.send(rawEvent{path: path, kind: protocol.ChangeCreated})
		}
	}
}

func (b *pollBackend) send(event rawEvent) {
	select {
	case b.events <- event:
	case <-b.stop:
	}
}
