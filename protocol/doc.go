// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the Outpost wire protocol: request and
// response envelopes, the closed operation set, the error taxonomy,
// filesystem change descriptions, and path metadata.
//
// Every message on the wire is one CBOR-encoded envelope. A Request
// carries a client-allocated id, a free-form tenant label echoed back
// in responses, and an operation payload. A Response carries a
// server-allocated id, the origin id of the request it answers, the
// echoed tenant, and a response payload. Payloads are adjacent-tagged
// unions: on the wire they are {op, args} pairs, where op names the
// operation and args holds its operation-specific fields. An unknown
// op decodes to an Unknown placeholder rather than failing the
// envelope — the dispatcher answers it with a protocol error, and a
// client surfaces it the same way, so a version-skewed peer degrades
// per request instead of per connection.
//
// A single request produces zero, one, or many responses. Streaming
// operations (proc-spawn, watch) produce an unbounded sequence closed
// by a terminal payload: process-done, watch-unwatched, or error.
// IsTerminal reports the classification used by callers to end a
// response sequence.
package protocol
