// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential handles Outpost connection credentials: the server
// address and the 32-byte pre-shared symmetric key that authenticates
// and encrypts the framed transport.
//
// The interchange representation is a host:port string plus the key as
// 64 lowercase hex characters. Key material is held in mmap-backed
// secret buffers (lib/secret) from the moment it is decoded. For
// logging and diagnostics the key is identified by a keyed BLAKE3
// fingerprint that reveals nothing about the key itself.
//
// Key files at rest may optionally be sealed with age passphrase
// encryption; LoadKeyFile transparently detects the age header.
package credential
