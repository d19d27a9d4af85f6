// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/outpost/lib/secret"
)

// KeySize is the size in bytes of the pre-shared connection key. The
// frame layer's XChaCha20-Poly1305 codec requires exactly this much key
// material.
const KeySize = 32

// fingerprintDomain is the data prefix for the BLAKE3 hash that
// produces key fingerprints. The domain tag keeps fingerprints from
// colliding with any other BLAKE3 use of the same key material.
var fingerprintDomain = []byte("outpost.credential.fingerprint.v1")

// Credentials bundles a server address with the pre-shared key needed
// to open an encrypted transport to it.
type Credentials struct {
	// Host is the server hostname or IP address.
	Host string

	// Port is the server TCP port.
	Port uint16

	key *secret.Buffer
}

// New creates credentials from an address and an existing key buffer.
// The Credentials take ownership of the buffer; Close releases it.
func New(host string, port uint16, key *secret.Buffer) (*Credentials, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("connection key must be %d bytes, got %d", KeySize, key.Len())
	}
	return &Credentials{Host: host, Port: port, key: key}, nil
}

// Parse builds credentials from the interchange representation: a
// "host:port" string and the key as 64 lowercase hex characters.
func Parse(address, hexKey string) (*Credentials, error) {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("parsing address %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parsing port %q: %w", portString, err)
	}

	key, err := secret.DecodeHexKey(hexKey, KeySize)
	if err != nil {
		return nil, fmt.Errorf("decoding connection key: %w", err)
	}

	return &Credentials{Host: host, Port: uint16(port), key: key}, nil
}

// Address returns the "host:port" form for dialing.
func (c *Credentials) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Key returns the key buffer. The buffer remains owned by the
// Credentials — do not close it directly.
func (c *Credentials) Key() *secret.Buffer {
	return c.key
}

// Fingerprint returns a short hex identifier for the key, safe to log.
func (c *Credentials) Fingerprint() string {
	return KeyFingerprint(c.key)
}

// KeyFingerprint derives a short hex identifier for a connection key:
// BLAKE3(domain || key), truncated to 8 bytes. Two sides holding the
// same key log the same fingerprint, which is the point: key
// mismatches become diagnosable without ever logging the key.
func KeyFingerprint(key *secret.Buffer) string {
	hasher := blake3.New()
	hasher.Write(fingerprintDomain)
	hasher.Write(key.Bytes())
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// Close releases the key material. Idempotent.
func (c *Credentials) Close() error {
	if c.key != nil {
		return c.key.Close()
	}
	return nil
}

// FormatKeyHex encodes raw key bytes as the interchange hex form:
// 64 lowercase characters. The input is not zeroed.
func FormatKeyHex(raw []byte) (string, error) {
	if len(raw) != KeySize {
		return "", fmt.Errorf("connection key must be %d bytes, got %d", KeySize, len(raw))
	}
	return strings.ToLower(hex.EncodeToString(raw)), nil
}
