// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

// Codec transforms frame bodies between their application form and
// their wire form. Encode runs on the write path, Decode on the read
// path; for every codec, Decode(Encode(body)) must return body.
//
// Codecs are stateful per direction (the encryption codec counts
// nonces) and must not be shared between connections. A codec's
// methods are never called concurrently with themselves: the transport
// serializes all writes under one lock and all reads under another.
type Codec interface {
	// Encode transforms an outbound frame body.
	Encode(body []byte) ([]byte, error)

	// Decode transforms an inbound frame body. A decode failure is
	// fatal to the connection.
	Decode(body []byte) ([]byte, error)
}

// Plain returns the identity codec, used where confidentiality is
// provided by the substrate (unix sockets, loopback, tests).
func Plain() Codec { return plainCodec{} }

type plainCodec struct{}

func (plainCodec) Encode(body []byte) ([]byte, error) { return body, nil }

func (plainCodec) Decode(body []byte) ([]byte, error) { return body, nil }

// Chain composes codecs: Encode applies them first-to-last, Decode
// last-to-first. Use it to compress before encrypting:
//
//	codec := frame.Chain(frame.Zstd(), encryption)
func Chain(codecs ...Codec) Codec {
	if len(codecs) == 1 {
		return codecs[0]
	}
	return chainCodec(codecs)
}

type chainCodec []Codec

func (c chainCodec) Encode(body []byte) ([]byte, error) {
	var err error
	for _, codec := range c {
		body, err = codec.Encode(body)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (c chainCodec) Decode(body []byte) ([]byte, error) {
	var err error
	for index := len(c) - 1; index >= 0; index-- {
		body, err = c[index].Decode(body)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}
