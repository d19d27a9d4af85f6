// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport presents a duplex, frame-oriented channel over any
// byte-stream substrate: TCP, Unix domain sockets, or an in-memory
// pipe pair for tests.
//
// A Conn wraps the substrate with the frame layer (length-prefixed
// framing plus a body codec from package frame). Its two halves — the
// read side yielding decoded frame bodies and the write side accepting
// them — may be used concurrently from independent goroutines, but
// each half is single-consumer. A read error, decode failure, or
// explicit Close tears down both halves: queued writes fail with
// ErrClosed and Done() is closed.
//
// Codecs are stateful per connection (the encryption codec counts
// nonces), so the Listener takes a codec factory and builds a fresh
// codec for every accepted connection, while Dial takes the one codec
// instance its single connection will use.
package transport
