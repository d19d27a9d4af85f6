// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Outpost's standard CBOR encoding configuration.
//
// Everything that crosses the wire — request and response envelopes,
// payload unions, streamed process and watch events — is CBOR. This
// package provides the shared encoding and decoding modes so that every
// Outpost package encodes identically without duplicating configuration.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes.
//
// For buffer-oriented operations (frame bodies, tests):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Unknown fields are ignored on decode, so a newer peer can add fields
// without breaking an older one. Missing optional fields decode to their
// Go zero values; payload types define their defaults on top of that.
//
// Wire types carry `cbor` struct tags exclusively — nothing in the
// protocol is ever serialized as JSON.
package codec
