// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the client side of the Outpost protocol:
// a request/response engine multiplexing many concurrent logical calls
// over one framed transport.
//
// A Session owns the transport and two goroutines: a reader that
// demultiplexes inbound responses into per-request mailboxes via the
// post office, and a writer that serializes all outbound requests
// through a single sink so frame boundaries are preserved. Channels
// are cheap handles onto the session; every channel shares the
// session's id space, transport, and post office.
//
// Send registers a bounded mailbox keyed by a freshly allocated
// request id and enqueues the request. The caller drains the mailbox
// with Next until it observes a terminal payload for its request kind,
// then closes it — terminal detection is deliberately the caller's
// concern, not the reader's. The reader never blocks on a slow
// consumer: a full mailbox evicts its oldest undelivered response and
// the eviction is logged.
//
// Closing a mailbox is the cancellation signal. It unregisters the
// mailbox locally and sends nothing to the server; operations holding
// server-side resources have explicit counter-requests (proc-kill,
// unwatch) that a caller issues first when it wants the resource
// released.
package session
