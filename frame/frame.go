// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// headerLength is the fixed size of a frame header: 4 bytes body
// length, big-endian.
const headerLength = 4

// MaxBodyLength is the maximum allowed frame body size. 8 MiB bounds
// memory per frame; larger payloads (big file reads) must be split by
// the caller or rejected.
const MaxBodyLength = 8 * 1024 * 1024

// Write writes one framed body to w: [4 bytes length, big-endian]
// [body]. The body must already be codec-encoded.
func Write(w io.Writer, body []byte) error {
	if len(body) > MaxBodyLength {
		return fmt.Errorf("frame body %d bytes exceeds maximum %d", len(body), MaxBodyLength)
	}
	var header [headerLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write frame body: %w", err)
		}
	}
	return nil
}

// Read reads one framed body from r. Returns io.EOF only on a clean
// boundary (no bytes of the next frame read); a stream closed
// mid-frame returns io.ErrUnexpectedEOF wrapped with context.
func Read(r io.Reader) ([]byte, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	bodyLength := binary.BigEndian.Uint32(header[:])
	if bodyLength > MaxBodyLength {
		return nil, fmt.Errorf("frame body %d bytes exceeds maximum %d", bodyLength, MaxBodyLength)
	}
	body := make([]byte, bodyLength)
	if bodyLength > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("read frame body: %w", err)
		}
	}
	return body, nil
}
