// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/outpost/lib/codec"
	"github.com/bureau-foundation/outpost/protocol"
	"github.com/bureau-foundation/outpost/transport"
)

// Reply is the server-side counterpart to a client mailbox: a sink
// that tags outbound payloads with the originating request id and
// allocates a fresh response id per emission. Cloneable by value and
// safe for concurrent use — the transport serializes concurrent
// writers.
type Reply struct {
	conn     *transport.Conn
	logger   *slog.Logger
	sequence *atomic.Uint64
	originID uint64
	tenant   string
}

// Send emits one response payload on this reply's stream. Errors are
// logged, not returned: by the time a send fails the connection is
// gone and the per-request work is being torn down anyway.
func (r Reply) Send(payload protocol.ResponseArgs) {
	response := protocol.Response{
		ID:       r.sequence.Add(1),
		OriginID: r.originID,
		Tenant:   r.tenant,
		Payload:  payload,
	}
	body, err := codec.Marshal(response)
	if err != nil {
		r.logger.Error("encoding response",
			"origin_id", r.originID, "op", payload.Op(), "error", err)
		return
	}
	if err := r.conn.WriteFrame(body); err != nil {
		if !errors.Is(err, transport.ErrClosed) {
			r.logger.Warn("writing response",
				"origin_id", r.originID, "op", payload.Op(), "error", err)
		}
	}
}
