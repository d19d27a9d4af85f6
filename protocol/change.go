// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// ChangeKind labels a filesystem change event.
type ChangeKind string

const (
	// ChangeCreated reports a file or directory appearing under a
	// watched path.
	ChangeCreated ChangeKind = "created"

	// ChangeRemoved reports a file or directory disappearing.
	ChangeRemoved ChangeKind = "removed"

	// ChangeModified reports content modification.
	ChangeModified ChangeKind = "modified"

	// ChangeRenamedFrom reports the source side of a rename.
	ChangeRenamedFrom ChangeKind = "renamed-from"

	// ChangeRenamedTo reports the destination side of a rename.
	ChangeRenamedTo ChangeKind = "renamed-to"

	// ChangeAttribute reports permission, ownership, or timestamp
	// changes.
	ChangeAttribute ChangeKind = "attribute-changed"

	// ChangeOther is the catch-all for events the backend cannot
	// classify.
	ChangeOther ChangeKind = "other"
)

// AttributeDetail clarifies which attribute changed for
// ChangeAttribute events.
type AttributeDetail string

const (
	AttributeOwnership   AttributeDetail = "ownership"
	AttributePermissions AttributeDetail = "permissions"
	AttributeTimestamp   AttributeDetail = "timestamp"
)

// ChangeDetails carries optional extra information about a change.
type ChangeDetails struct {
	// Attribute discriminates attribute-changed events.
	Attribute AttributeDetail `cbor:"attribute,omitempty"`

	// RenamedTo is the new path for renamed-from events when the
	// backend can pair the two halves of the rename.
	RenamedTo string `cbor:"renamed_to,omitempty"`

	// Timestamp is a change-specific secondary timestamp in seconds
	// since the epoch (ctime for creates, mtime for modifies), when
	// the backend provides one.
	Timestamp uint64 `cbor:"ts,omitempty"`
}

// Changed is one change event on a watch stream.
type Changed struct {
	// Path is the filesystem path that changed.
	Path string `cbor:"path"`

	// Kind labels the change.
	Kind ChangeKind `cbor:"kind"`

	// Timestamp is when the server observed the change (not when it
	// occurred), in seconds since the epoch.
	Timestamp uint64 `cbor:"ts"`

	// Details carries kind-specific extra information.
	Details *ChangeDetails `cbor:"details,omitempty"`
}

func (*Changed) Op() ResponseOp { return OpChanged }

// KindFilter applies a watch request's only/except sets at emission
// time. A zero KindFilter passes everything.
type KindFilter struct {
	only   map[ChangeKind]bool
	except map[ChangeKind]bool
}

// NewKindFilter builds a filter from a watch request's only and except
// lists.
func NewKindFilter(only, except []ChangeKind) KindFilter {
	filter := KindFilter{}
	if len(only) > 0 {
		filter.only = make(map[ChangeKind]bool, len(only))
		for _, kind := range only {
			filter.only[kind] = true
		}
	}
	if len(except) > 0 {
		filter.except = make(map[ChangeKind]bool, len(except))
		for _, kind := range except {
			filter.except[kind] = true
		}
	}
	return filter
}

// Allows reports whether a change kind passes the filter.
func (f KindFilter) Allows(kind ChangeKind) bool {
	if f.only != nil && !f.only[kind] {
		return false
	}
	return !f.except[kind]
}
