// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch implements the server-side filesystem watch manager:
// it owns watches established by clients, translates native
// filesystem events into change responses on the originating request's
// stream, and coalesces event bursts.
//
// Two backends exist. On Linux the native backend reads inotify
// directly (adding watches recursively and following directory
// creation when the watch is recursive). Everywhere else — or when a
// deployment forces it — a polling backend snapshots the watched tree
// on an interval and diffs. Backend choice is per server, not per
// watch.
//
// Raw events pass through a debouncer before emission: events within
// the debounce window targeting the same path with compatible kinds
// collapse into one change response, with a tick loop (a quarter of
// the window) flushing entries whose window has elapsed. The watch
// request's only/except kind filters apply at emission time, after
// coalescing.
//
// A watch ends three ways: an explicit unwatch (the stream gets a
// terminal watch-unwatched marker), a watcher failure (terminal error
// payload; the manager does not restart the backend), or its
// connection closing (the record is dropped silently — there is
// nobody left to tell).
package watch
