// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
)

// ReadFromPath reads a secret from a file path, or from stdin if path is
// "-". The returned buffer is mmap-backed (locked into RAM, excluded
// from core dumps) and must be closed by the caller. Leading and
// trailing whitespace is trimmed before storing. Returns an error if the
// source is empty after trimming.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	// NewFromBytes copies into mmap-backed memory and zeros trimmed.
	buffer, err := NewFromBytes(trimmed)
	// Zero remaining bytes (whitespace prefix/suffix) not covered by trimmed.
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// DecodeHexKey decodes a lowercase hex-encoded key of the given byte
// length into a secret buffer. The hex input is not zeroed — it is the
// caller's transport representation (config field, CLI credential
// string) and the caller decides its lifetime. The decoded raw bytes
// never touch the heap outside the returned buffer.
func DecodeHexKey(hexKey string, keyLength int) (*Buffer, error) {
	if len(hexKey) != keyLength*2 {
		return nil, fmt.Errorf("key must be %d hex characters, got %d", keyLength*2, len(hexKey))
	}
	if bytes.ContainsAny([]byte(hexKey), "ABCDEF") {
		return nil, fmt.Errorf("key hex must be lowercase")
	}

	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding key hex: %w", err)
	}

	// NewFromBytes zeros raw after copying.
	return NewFromBytes(raw)
}
