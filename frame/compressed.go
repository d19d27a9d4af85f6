// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression codecs shrink frame bodies before they hit the wire (or
// the encryption codec — compress-then-encrypt, never the reverse).
// Both carry a 1-byte header marking whether the body was actually
// compressed, so incompressible bodies pass through at one byte of
// overhead instead of growing.

const (
	compressionRaw  byte = 0
	compressionDone byte = 1
)

// zstdEncoder and zstdDecoder are shared across connections: both are
// safe for concurrent use, and EncodeAll/DecodeAll are pure buffer
// operations.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("frame: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("frame: zstd decoder initialization failed: " + err.Error())
	}
}

// Zstd returns a codec compressing frame bodies with zstd at the
// default level. Good ratios for the text-heavy payloads (file text,
// directory listings) this protocol mostly carries.
func Zstd() Codec { return zstdCodec{} }

type zstdCodec struct{}

func (zstdCodec) Encode(body []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(body, make([]byte, 1, len(body)/2+1))
	if len(compressed)-1 >= len(body) {
		return append([]byte{compressionRaw}, body...), nil
	}
	compressed[0] = compressionDone
	return compressed, nil
}

func (zstdCodec) Decode(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("zstd frame body is empty")
	}
	switch body[0] {
	case compressionRaw:
		return body[1:], nil
	case compressionDone:
		decompressed, err := zstdDecoder.DecodeAll(body[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(decompressed) > MaxBodyLength {
			return nil, fmt.Errorf("decompressed body %d bytes exceeds maximum %d", len(decompressed), MaxBodyLength)
		}
		return decompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression marker %d", body[0])
	}
}

// LZ4 returns a codec compressing frame bodies with block-mode LZ4.
// Faster than zstd with lower ratios; the right choice for bulk
// binary traffic such as process output.
func LZ4() Codec { return lz4Codec{} }

type lz4Codec struct{}

// lz4HeaderLength is the LZ4 body header: 1 marker byte + 4 bytes
// big-endian uncompressed size (block-mode LZ4 needs the exact
// destination size to decompress).
const lz4HeaderLength = 5

func (lz4Codec) Encode(body []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(body))
	destination := make([]byte, lz4HeaderLength+bound)

	written, err := lz4.CompressBlock(body, destination[lz4HeaderLength:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 when it determines the data is
	// incompressible; also fall back when compression did not
	// actually shrink the body.
	if written == 0 || written >= len(body) {
		output := make([]byte, 1, 1+len(body))
		output[0] = compressionRaw
		return append(output, body...), nil
	}

	destination[0] = compressionDone
	binary.BigEndian.PutUint32(destination[1:lz4HeaderLength], uint32(len(body)))
	return destination[:lz4HeaderLength+written], nil
}

func (lz4Codec) Decode(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("lz4 frame body is empty")
	}
	switch body[0] {
	case compressionRaw:
		return body[1:], nil
	case compressionDone:
		if len(body) < lz4HeaderLength {
			return nil, fmt.Errorf("lz4 frame body is %d bytes, minimum is %d", len(body), lz4HeaderLength)
		}
		uncompressedSize := binary.BigEndian.Uint32(body[1:lz4HeaderLength])
		if uncompressedSize > MaxBodyLength {
			return nil, fmt.Errorf("decompressed body %d bytes exceeds maximum %d", uncompressedSize, MaxBodyLength)
		}
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(body[lz4HeaderLength:], destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != int(uncompressedSize) {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("unknown compression marker %d", body[0])
	}
}
