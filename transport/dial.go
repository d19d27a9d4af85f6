// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/outpost/frame"
)

// Dialer opens framed connections to an Outpost server.
type Dialer struct {
	// Timeout is the maximum time to wait for the substrate
	// connection to be established. Zero means no standalone timeout —
	// only the context deadline applies.
	Timeout time.Duration
}

// DialContext opens a connection on the given network ("tcp" or
// "unix") and wraps it with the codec. The codec instance must be
// fresh — codecs are stateful and single-connection.
func (d *Dialer) DialContext(ctx context.Context, network, address string, codec frame.Codec) (*Conn, error) {
	switch network {
	case "tcp", "unix":
	default:
		return nil, fmt.Errorf("unsupported network %q (want tcp or unix)", network)
	}

	raw, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", dialerAddress(network, address), err)
	}
	return NewConn(raw, codec, dialerAddress(network, address)), nil
}

// Dial is DialContext with a background context and default dialer.
func Dial(network, address string, codec frame.Codec) (*Conn, error) {
	return (&Dialer{}).DialContext(context.Background(), network, address, codec)
}
