// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bureau-foundation/outpost/lib/secret"
)

// KeySize is the pre-shared key size required by the encryption codec.
const KeySize = chacha20poly1305.KeySize

// noncePrefixLength is the random upper portion of the 24-byte
// XChaCha20 nonce: drawn once at connection start and frozen.
const noncePrefixLength = chacha20poly1305.NonceSizeX - 8

// encryptedOverhead is the per-frame byte overhead: 24 (nonce) +
// 16 (Poly1305 tag).
const encryptedOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// NewEncryption creates the authenticated-encryption codec:
// XChaCha20-Poly1305 with a 256-bit pre-shared key and empty
// associated data. The encoded body layout is:
//
//	[Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
//
// Nonces are counter || random: the low 8 bytes are a per-connection
// monotonic counter starting from a random initial value, the high
// 16 bytes are drawn from the system CSPRNG at creation and frozen.
// The decode side enforces a frozen peer prefix and a strictly
// increasing peer counter; violation or tag mismatch poisons the
// codec, and every later Decode fails without touching the payload.
//
// The key is borrowed (read via Bytes) and NOT closed; the caller
// controls its lifetime.
func NewEncryption(key *secret.Buffer) (Codec, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, key.Len())
	}
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	codec := &encryptionCodec{aead: aead}
	if _, err := io.ReadFull(rand.Reader, codec.sendPrefix[:]); err != nil {
		return nil, fmt.Errorf("generating nonce prefix: %w", err)
	}
	var counterSeed [8]byte
	if _, err := io.ReadFull(rand.Reader, counterSeed[:]); err != nil {
		return nil, fmt.Errorf("generating nonce counter seed: %w", err)
	}
	// Clear the top bit so the counter has 2^63 increments of
	// headroom before wrapping, which no connection will reach.
	codec.sendCounter = binary.LittleEndian.Uint64(counterSeed[:]) &^ (1 << 63)

	return codec, nil
}

type encryptionCodec struct {
	aead cipher.AEAD

	sendPrefix  [noncePrefixLength]byte
	sendCounter uint64

	recvPrefix  [noncePrefixLength]byte
	recvCounter uint64
	recvStarted bool

	// poisoned is set on the first decode failure. Once set, no
	// further frame is ever delivered on this codec.
	poisoned bool
}

func (c *encryptionCodec) Encode(body []byte) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	binary.LittleEndian.PutUint64(nonce[:8], c.sendCounter)
	copy(nonce[8:], c.sendPrefix[:])
	c.sendCounter++

	output := make([]byte, chacha20poly1305.NonceSizeX, len(body)+encryptedOverhead)
	copy(output, nonce[:])
	return c.aead.Seal(output, nonce[:], body, nil), nil
}

func (c *encryptionCodec) Decode(body []byte) ([]byte, error) {
	if c.poisoned {
		return nil, fmt.Errorf("encryption codec poisoned by earlier failure")
	}

	if len(body) < encryptedOverhead {
		c.poisoned = true
		return nil, fmt.Errorf("encrypted frame is %d bytes, minimum is %d (nonce + tag)",
			len(body), encryptedOverhead)
	}

	nonce := body[:chacha20poly1305.NonceSizeX]
	counter := binary.LittleEndian.Uint64(nonce[:8])
	prefix := nonce[8:chacha20poly1305.NonceSizeX]

	if c.recvStarted {
		if subtle.ConstantTimeCompare(prefix, c.recvPrefix[:]) != 1 {
			c.poisoned = true
			return nil, fmt.Errorf("peer nonce prefix changed mid-connection")
		}
		if counter <= c.recvCounter {
			c.poisoned = true
			return nil, fmt.Errorf("peer nonce counter did not advance (reuse or replay)")
		}
	} else {
		copy(c.recvPrefix[:], prefix)
		c.recvStarted = true
	}
	c.recvCounter = counter

	plaintext, err := c.aead.Open(nil, nonce, body[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		c.poisoned = true
		return nil, fmt.Errorf("frame authentication failed (wrong key or tampered data): %w", err)
	}
	return plaintext, nil
}
