// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/outpost/frame"
)

// ErrClosed is returned by frame operations on a connection that has
// been torn down, either explicitly or by a fatal read-side error.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a framed duplex connection. The read half yields decoded
// frame bodies in arrival order; the write half accepts bodies and
// serializes them onto the substrate. Both halves may be used
// concurrently, each from a single goroutine.
type Conn struct {
	raw    io.ReadWriteCloser
	codec  frame.Codec
	reader *bufio.Reader
	label  string

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps a byte stream with framing and the given codec. The
// label identifies the peer in logs (an address for sockets, "pipe"
// for in-memory pairs).
func NewConn(raw io.ReadWriteCloser, codec frame.Codec, label string) *Conn {
	return &Conn{
		raw:    raw,
		codec:  codec,
		reader: bufio.NewReader(raw),
		label:  label,
		done:   make(chan struct{}),
	}
}

// ReadFrame reads and decodes the next frame body. Single-consumer.
// Returns io.EOF on clean peer shutdown at a frame boundary and
// ErrClosed after teardown; any other error is fatal and has already
// torn the connection down by the time it is returned.
func (c *Conn) ReadFrame() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.isClosed() {
		return nil, ErrClosed
	}

	body, err := frame.Read(c.reader)
	if err != nil {
		c.teardown()
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame from %s: %w", c.label, err)
	}

	decoded, err := c.codec.Decode(body)
	if err != nil {
		// Decode failures (authentication, nonce reuse, corrupt
		// compression) are fatal: no later frame may be delivered.
		c.teardown()
		return nil, fmt.Errorf("decoding frame from %s: %w", c.label, err)
	}
	return decoded, nil
}

// WriteFrame encodes and writes one frame body. Safe for use
// concurrently with ReadFrame; writers among themselves are serialized
// by an internal mutex so frame boundaries are preserved.
func (c *Conn) WriteFrame(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	encoded, err := c.codec.Encode(body)
	if err != nil {
		return fmt.Errorf("encoding frame for %s: %w", c.label, err)
	}
	if err := frame.Write(c.raw, encoded); err != nil {
		c.teardown()
		return fmt.Errorf("writing frame to %s: %w", c.label, err)
	}
	return nil
}

// Close tears the connection down. Idempotent.
func (c *Conn) Close() error {
	c.teardown()
	return nil
}

// Done is closed when the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Label returns the peer label for logging.
func (c *Conn) Label() string { return c.label }

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.raw.Close()
	})
}

// Split returns the connection's two single-consumer halves. The
// halves share the Conn's teardown: a fatal error on either side
// closes both.
func (c *Conn) Split() (*ReadHalf, *WriteHalf) {
	return &ReadHalf{conn: c}, &WriteHalf{conn: c}
}

// ReadHalf is the frame-yielding side of a Conn.
type ReadHalf struct {
	conn *Conn
}

// ReadFrame reads the next decoded frame body.
func (h *ReadHalf) ReadFrame() ([]byte, error) { return h.conn.ReadFrame() }

// WriteHalf is the frame-accepting side of a Conn.
type WriteHalf struct {
	conn *Conn
}

// WriteFrame writes one frame body.
func (h *WriteHalf) WriteFrame(body []byte) error { return h.conn.WriteFrame(body) }

// dialerAddress formats a network/address pair for labels.
func dialerAddress(network, address string) string {
	if network == "unix" {
		return "unix:" + address
	}
	return address
}
