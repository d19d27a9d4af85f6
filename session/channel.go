// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/outpost/protocol"
)

// Channel is a cheap, copyable handle onto a session. Multiple
// channels share one transport; sending from any of them allocates an
// id from the shared space.
type Channel struct {
	session *Session
}

// Send issues a request through the shared session.
func (c *Channel) Send(payload protocol.RequestArgs) (*Mailbox, error) {
	return c.session.Send(payload)
}

// Call issues a request and waits for its single terminal response —
// the convenience form for the many operations that produce exactly
// one payload. The mailbox is closed before returning. An error
// payload is returned as a *protocol.Error.
func (c *Channel) Call(ctx context.Context, payload protocol.RequestArgs) (protocol.ResponseArgs, error) {
	mailbox, err := c.Send(payload)
	if err != nil {
		return nil, err
	}
	defer mailbox.Close()

	response, err := mailbox.Next(ctx)
	if err != nil {
		return nil, err
	}
	if wireError, ok := response.Payload.(*protocol.Error); ok {
		return nil, wireError
	}
	if !protocol.IsTerminal(response.Payload) {
		return nil, fmt.Errorf("request %s answered with streaming payload %s; use Send",
			payload.Op(), response.Payload.Op())
	}
	return response.Payload, nil
}
