// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the Outpost server: a dispatcher that
// consumes requests from a framed connection and executes them,
// emitting responses tagged with the originating request id.
//
// Each connection gets one reader goroutine. Every request spawns a
// handler goroutine holding a reply handle — a cloneable sink that
// stamps outgoing payloads with the captured origin id and allocates a
// fresh response id per emission. Two request kinds bend that rule:
// proc-stdin is enqueued synchronously from the reader loop so stdin
// bytes reach the child in wire arrival order (the enqueue never
// blocks), and batch payloads execute their sub-requests sequentially
// in one goroutine so responses come back in sub-payload order.
//
// Long-lived requests (proc-spawn, watch) hand their reply handle to
// the process or watch manager, which keeps emitting continuation
// responses after the handler goroutine is gone. Connection teardown
// releases both managers: non-persistent processes are killed,
// persistent ones detached, watches dropped.
//
// Filesystem operations, metadata queries, and system information are
// implemented directly in this package; processes and watches live in
// their own managers (packages proc and watch) shared across
// connections.
package server
