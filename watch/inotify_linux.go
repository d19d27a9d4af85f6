// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package watch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/outpost/protocol"
)

// nativeAvailable reports whether this platform has a native backend.
const nativeAvailable = true

// inotifyMask selects the events a watch subscribes to.
const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_MOVED_FROM |
	unix.IN_MOVED_TO | unix.IN_MOVE_SELF | unix.IN_ATTRIB

// inotifyBackend reads raw inotify events for one watched path.
type inotifyBackend struct {
	fd        int
	root      string
	recursive bool

	events chan rawEvent

	mu      sync.Mutex
	watches map[int32]string
	failure error

	stop     chan struct{}
	stopOnce sync.Once
}

// newNativeBackend creates an inotify backend for the path. A
// recursive watch on a directory walks the existing tree and follows
// directories created later.
func newNativeBackend(root string, recursive bool) (backend, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	b := &inotifyBackend{
		fd:        fd,
		root:      root,
		recursive: recursive && info.IsDir(),
		events:    make(chan rawEvent, 64),
		watches:   make(map[int32]string),
		stop:      make(chan struct{}),
	}

	if err := b.addWatch(root); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if b.recursive {
		if err := b.addTree(root); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}

	go b.readLoop()
	return b, nil
}

func (b *inotifyBackend) Events() <-chan rawEvent { return b.events }

func (b *inotifyBackend) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

func (b *inotifyBackend) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	return nil
}

func (b *inotifyBackend) addWatch(path string) error {
	wd, err := unix.InotifyAddWatch(b.fd, path, inotifyMask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch on %s: %w", path, err)
	}
	b.mu.Lock()
	b.watches[int32(wd)] = path
	b.mu.Unlock()
	return nil
}

// addTree adds watches for every directory under root. Files under a
// watched directory report through their parent's watch; only
// directories need their own.
func (b *inotifyBackend) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable subdirectory does not fail the watch; its
			// contents simply go unobserved.
			return nil
		}
		if entry.IsDir() && path != root {
			if err := b.addWatch(path); err != nil {
				return nil
			}
		}
		return nil
	})
}

// readLoop polls the inotify fd, translating native events. Uses
// poll(2) with a 100ms timeout so the goroutine remains responsive to
// the stop signal without burning CPU on a tight loop.
func (b *inotifyBackend) readLoop() {
	defer func() {
		unix.Close(b.fd)
		close(b.events)
	}()

	buffer := make([]byte, 64*1024)
	for {
		select {
		case <-b.stop:
			return
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			b.fail(fmt.Errorf("poll on inotify fd: %w", err))
			return
		}
		if count == 0 {
			continue // timeout, check stop
		}

		bytesRead, err := unix.Read(b.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			b.fail(fmt.Errorf("reading inotify events: %w", err))
			return
		}

		b.dispatch(buffer[:bytesRead])
	}
}

func (b *inotifyBackend) fail(err error) {
	b.mu.Lock()
	b.failure = err
	b.mu.Unlock()
}

// dispatch walks a buffer of raw inotify events and emits them.
//
// Inotify event layout (from inotify(7)):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, padded to alignment
//	};
func (b *inotifyBackend) dispatch(buffer []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		wd := int32(binary.NativeEndian.Uint32(buffer[offset : offset+4]))
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		name := string(bytes.TrimRight(buffer[offset+unix.SizeofInotifyEvent:offset+eventSize], "\x00"))
		offset += eventSize

		if mask&unix.IN_IGNORED != 0 {
			b.mu.Lock()
			delete(b.watches, wd)
			b.mu.Unlock()
			continue
		}

		b.mu.Lock()
		base, known := b.watches[wd]
		b.mu.Unlock()
		if !known {
			continue
		}

		path := base
		if name != "" {
			path = filepath.Join(base, name)
		}

		kind, ok := classifyMask(mask)
		if !ok {
			continue
		}

		// A recursive watch follows directories as they appear.
		if b.recursive && mask&unix.IN_ISDIR != 0 &&
			(mask&unix.IN_CREATE != 0 || mask&unix.IN_MOVED_TO != 0) {
			if err := b.addWatch(path); err == nil {
				b.addTree(path)
			}
		}

		b.send(rawEvent{path: path, kind: kind})
	}
}

// classifyMask maps an inotify mask to a change kind.
func classifyMask(mask uint32) (protocol.ChangeKind, bool) {
	switch {
	case mask&unix.IN_CREATE != 0:
		return protocol.ChangeCreated, true
	case mask&unix.IN_MOVED_TO != 0:
		return protocol.ChangeRenamedTo, true
	case mask&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0:
		return protocol.ChangeRemoved, true
	case mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0:
		return protocol.ChangeModified, true
	case mask&(unix.IN_MOVED_FROM|unix.IN_MOVE_SELF) != 0:
		return protocol.ChangeRenamedFrom, true
	case mask&unix.IN_ATTRIB != 0:
		return protocol.ChangeAttribute, true
	case mask&unix.IN_Q_OVERFLOW != 0:
		return protocol.ChangeOther, true
	default:
		return "", false
	}
}

func (b *inotifyBackend) send(event rawEvent) {
	select {
	case b.events <- event:
	case <-b.stop:
	}
}
