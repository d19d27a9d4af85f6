// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import "github.com/bureau-foundation/outpost/protocol"

// rawEvent is one change observed by a backend, before debouncing and
// filtering.
type rawEvent struct {
	path    string
	kind    protocol.ChangeKind
	details *protocol.ChangeDetails
}

// backend watches one path (optionally recursively) and delivers raw
// events until closed or failed.
type backend interface {
	// Events yields raw change events. The channel closes when the
	// backend stops — on Close or on failure.
	Events() <-chan rawEvent

	// Err reports why Events closed: nil after a clean Close, the
	// failure otherwise.
	Err() error

	// Close stops the backend. Idempotent.
	Close() error
}
