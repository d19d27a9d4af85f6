// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame implements Outpost's wire framing and frame-body
// codecs.
//
// A frame is a 4-byte big-endian length followed by a body of that
// many bytes. The body is one serialized protocol envelope transformed
// by a Codec: the identity transformation (Plain), XChaCha20-Poly1305
// authenticated encryption (Encryption), optional zstd or LZ4
// compression (Zstd, LZ4), or a chain of those (Chain). Both ends of a
// connection must run the same codec stack; there is no negotiation
// and no handshake — key agreement, if needed, happens outside this
// package.
//
// Read-side errors are fatal to the connection: a length beyond
// MaxBodyLength, a stream closed mid-frame, an authentication failure,
// or a repeated nonce all poison the stream, and no later frame is
// delivered.
package frame
