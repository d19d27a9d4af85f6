// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net"

	"github.com/bureau-foundation/outpost/frame"
)

// Pipe returns a connected pair of in-memory framed connections, one
// per end, for tests and same-process embedding. Each end gets its own
// codec instance (codecs are stateful); pass frame.Plain() twice for
// the common case.
//
// The underlying net.Pipe is synchronous: a WriteFrame blocks until
// the peer reads. Callers that need buffering provide it themselves
// (the session queues writes for its writer goroutine); the server's
// reply handles write straight through and block, exactly as they do
// under socket backpressure.
func Pipe(clientCodec, serverCodec frame.Codec) (client, server *Conn) {
	clientRaw, serverRaw := net.Pipe()
	return NewConn(clientRaw, clientCodec, "pipe-client"),
		NewConn(serverRaw, serverCodec, "pipe-server")
}
