// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/bureau-foundation/outpost/frame"
)

// CodecFactory builds a fresh frame codec for one accepted
// connection. Codecs hold per-connection state (nonce counters), so
// the listener needs a factory rather than an instance.
type CodecFactory func() (frame.Codec, error)

// PlainFactory is the factory for unencrypted listeners.
func PlainFactory() (frame.Codec, error) { return frame.Plain(), nil }

// Listener accepts framed connections and dispatches each to a
// handler goroutine. Use ":0" as a tcp port for a random available
// port; Address reports the bound address.
type Listener struct {
	network  string
	unixPath string
	factory  CodecFactory
	logger   *slog.Logger
	listener net.Listener

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

// NewListener binds the given network ("tcp" or "unix") and address.
// Any stale socket file at a unix address is removed before listening.
func NewListener(network, address string, factory CodecFactory, logger *slog.Logger) (*Listener, error) {
	switch network {
	case "tcp", "unix":
	default:
		return nil, fmt.Errorf("unsupported network %q (want tcp or unix)", network)
	}

	if network == "unix" {
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address, err)
		}
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", dialerAddress(network, address), err)
	}

	result := &Listener{
		network:  network,
		factory:  factory,
		logger:   logger,
		listener: listener,
	}
	if network == "unix" {
		result.unixPath = address
	}
	return result, nil
}

// Serve accepts connections and runs handle in a goroutine per
// connection. Blocks until ctx is cancelled or Close is called, then
// stops accepting and waits for active handlers to complete. The
// handler owns the connection and must close it.
//
// The unix socket file, if any, is removed on return.
func (l *Listener) Serve(ctx context.Context, handle func(ctx context.Context, conn *Conn)) error {
	defer func() {
		l.listener.Close()
		if l.unixPath != "" {
			os.Remove(l.unixPath)
		}
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	l.logger.Info("listening", "address", l.Address())

	for {
		raw, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Error("accept failed", "error", err)
			continue
		}

		codec, err := l.factory()
		if err != nil {
			l.logger.Error("building connection codec", "error", err)
			raw.Close()
			continue
		}

		conn := NewConn(raw, codec, raw.RemoteAddr().String())
		l.activeConnections.Add(1)
		go func() {
			defer l.activeConnections.Done()
			handle(ctx, conn)
		}()
	}

	l.activeConnections.Wait()
	return nil
}

// Close stops the listener. Subsequent Accepts inside Serve return
// and Serve drains its handlers.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Address returns the bound address: "host:port" for tcp (with any
// kernel-assigned port resolved) or "unix:<path>" for unix sockets.
func (l *Listener) Address() string {
	if l.network == "unix" {
		return "unix:" + l.unixPath
	}
	return l.listener.Addr().String()
}
