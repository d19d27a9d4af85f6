// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/bureau-foundation/outpost/lib/secret"
)

func testKey(t *testing.T) *secret.Buffer {
	t.Helper()
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	key, err := secret.NewFromBytes(raw)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

// encryptionPair returns linked send/receive codecs sharing one key,
// the way a client and server each hold one end.
func encryptionPair(t *testing.T) (sender, receiver Codec) {
	t.Helper()
	key := testKey(t)
	// Each side gets its own codec instance over the same key bytes;
	// secret buffers are zeroed on consumption so copy out first.
	keyCopyOne := make([]byte, KeySize)
	copy(keyCopyOne, key.Bytes())
	keyCopyTwo := make([]byte, KeySize)
	copy(keyCopyTwo, key.Bytes())

	bufferOne, err := secret.NewFromBytes(keyCopyOne)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { bufferOne.Close() })
	bufferTwo, err := secret.NewFromBytes(keyCopyTwo)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { bufferTwo.Close() })

	sender, err = NewEncryption(bufferOne)
	if err != nil {
		t.Fatalf("NewEncryption: %v", err)
	}
	receiver, err = NewEncryption(bufferTwo)
	if err != nil {
		t.Fatalf("NewEncryption: %v", err)
	}
	return sender, receiver
}

func TestCodecRoundtrips(t *testing.T) {
	sender, receiver := encryptionPair(t)

	codecs := []struct {
		name    string
		encode  Codec
		decode  Codec
	}{
		{"plain", Plain(), Plain()},
		{"zstd", Zstd(), Zstd()},
		{"lz4", LZ4(), LZ4()},
		{"encrypted", sender, receiver},
	}

	bodies := [][]byte{
		[]byte(""),
		[]byte("short"),
		bytes.Repeat([]byte("compressible text payload "), 1000),
		randomBytes(t, 4096),
	}

	for _, entry := range codecs {
		for index, body := range bodies {
			encoded, err := entry.encode.Encode(append([]byte(nil), body...))
			if err != nil {
				t.Fatalf("%s encode body %d: %v", entry.name, index, err)
			}
			decoded, err := entry.decode.Decode(encoded)
			if err != nil {
				t.Fatalf("%s decode body %d: %v", entry.name, index, err)
			}
			if !bytes.Equal(decoded, body) {
				t.Errorf("%s body %d: roundtrip mismatch", entry.name, index)
			}
		}
	}
}

func TestChainCompressThenEncrypt(t *testing.T) {
	sender, receiver := encryptionPair(t)
	sendChain := Chain(Zstd(), sender)
	recvChain := Chain(Zstd(), receiver)

	body := bytes.Repeat([]byte("text that compresses well "), 500)
	encoded, err := sendChain.Encode(append([]byte(nil), body...))
	if err != nil {
		t.Fatalf("chain encode: %v", err)
	}
	if bytes.Contains(encoded, []byte("text that compresses")) {
		t.Error("chained output leaks plaintext")
	}
	decoded, err := recvChain.Decode(encoded)
	if err != nil {
		t.Fatalf("chain decode: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Error("chain roundtrip mismatch")
	}
}

func TestEncryptionNonceFreshness(t *testing.T) {
	sender, _ := encryptionPair(t)

	first, err := sender.Encode([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	second, err := sender.Encode([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("same plaintext encrypted twice produced identical ciphertext")
	}
}

func TestEncryptionRejectsTamperedFrame(t *testing.T) {
	sender, receiver := encryptionPair(t)

	encoded, err := sender.Encode([]byte("payload"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded[len(encoded)-1] ^= 0x01

	if _, err := receiver.Decode(encoded); err == nil {
		t.Fatal("tampered frame decoded")
	}
}

func TestEncryptionPoisonedAfterFailure(t *testing.T) {
	sender, receiver := encryptionPair(t)

	good, err := sender.Encode([]byte("frame one"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0x01

	if _, err := receiver.Decode(bad); err == nil {
		t.Fatal("tampered frame decoded")
	}

	// A subsequent valid frame must NOT be delivered: failure is
	// fatal to the connection.
	later, err := sender.Encode([]byte("frame two"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := receiver.Decode(later); err == nil {
		t.Fatal("frame delivered after decode failure")
	}
}

func TestEncryptionRejectsReplayedNonce(t *testing.T) {
	sender, receiver := encryptionPair(t)

	first, err := sender.Encode([]byte("frame"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := receiver.Decode(append([]byte(nil), first...)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Replaying the exact same frame repeats its nonce.
	if _, err := receiver.Decode(append([]byte(nil), first...)); err == nil {
		t.Fatal("replayed nonce accepted")
	}
}

func randomBytes(t *testing.T, length int) []byte {
	t.Helper()
	data := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		t.Fatalf("generating random bytes: %v", err)
	}
	return data
}
