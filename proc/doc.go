// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proc implements the server-side process manager: it owns
// remote child processes, manages their stdio over plain pipes or a
// pseudo-terminal, and fans output back to the spawning client as
// response payloads.
//
// The manager is server-wide, not per-connection: persistent processes
// (spawned with persist=true) survive the connection that spawned them
// and remain visible to proc-list and killable by proc-kill from any
// connection, though their output is discarded once their connection
// is gone. Non-persistent processes are killed when their connection
// closes. Process ids are allocated by the manager from a server-wide
// counter so ids stay unique across connections for the lifetime of
// the server.
//
// Each spawned process runs three goroutines on plain pipes (stdout
// reader, stderr reader, exit waiter) or two on a PTY (the PTY merges
// the output streams). Output is chunked, one response per chunk. The
// exit waiter emits the terminal process-done strictly after the
// readers drain, so every process stream ends with exactly one done
// event. A dedicated stdin goroutine drains an ordered queue, so
// stdin bytes from successive proc-stdin requests reach the child in
// wire arrival order without ever blocking the connection's reader.
package proc
