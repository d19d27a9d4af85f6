// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/outpost/lib/secret"
)

const testHexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func secretFromString(t *testing.T, value string) (*secret.Buffer, error) {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err == nil {
		t.Cleanup(func() { buffer.Close() })
	}
	return buffer, err
}

func TestParseAndAddress(t *testing.T) {
	credentials, err := Parse("example.com:8080", testHexKey)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer credentials.Close()

	if credentials.Host != "example.com" || credentials.Port != 8080 {
		t.Errorf("parsed host/port: %s/%d", credentials.Host, credentials.Port)
	}
	if credentials.Address() != "example.com:8080" {
		t.Errorf("Address: %q", credentials.Address())
	}
	if credentials.Key().Len() != KeySize {
		t.Errorf("key length: %d", credentials.Key().Len())
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse("no-port", testHexKey); err == nil {
		t.Error("address without port accepted")
	}
	if _, err := Parse("host:99999", testHexKey); err == nil {
		t.Error("out-of-range port accepted")
	}
	if _, err := Parse("host:1", "deadbeef"); err == nil {
		t.Error("short key accepted")
	}
}

func TestFingerprintStableAndSafe(t *testing.T) {
	first, err := Parse("a:1", testHexKey)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer first.Close()
	second, err := Parse("b:2", testHexKey)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer second.Close()

	if first.Fingerprint() != second.Fingerprint() {
		t.Errorf("same key, different fingerprints: %s vs %s",
			first.Fingerprint(), second.Fingerprint())
	}
	if len(first.Fingerprint()) != 16 {
		t.Errorf("fingerprint length: %q", first.Fingerprint())
	}
	if strings.Contains(testHexKey, first.Fingerprint()) {
		t.Error("fingerprint leaks key bytes")
	}
}

func TestNewRequiresFullSizeKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	credentials, err := New("host", 9, key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer credentials.Close()
	if credentials.Address() != "host:9" {
		t.Errorf("Address: %q", credentials.Address())
	}

	short, err := secretFromString(t, "too-short")
	if err != nil {
		t.Fatalf("building short buffer: %v", err)
	}
	if _, err := New("host", 9, short); err == nil {
		t.Error("short key accepted")
	}
}

func TestKeyFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	wantHex, err := FormatKeyHex(key.Bytes())
	if err != nil {
		t.Fatalf("FormatKeyHex: %v", err)
	}

	if err := WriteKeyFile(path, key, ""); err != nil {
		t.Fatalf("WriteKeyFile: %v", err)
	}
	loaded, err := LoadKeyFile(path, "")
	if err != nil {
		t.Fatalf("LoadKeyFile: %v", err)
	}
	defer loaded.Close()

	gotHex, err := FormatKeyHex(loaded.Bytes())
	if err != nil {
		t.Fatalf("FormatKeyHex: %v", err)
	}
	if gotHex != wantHex {
		t.Errorf("key changed across write/load: %s vs %s", gotHex, wantHex)
	}
}

func TestSealedKeyFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.age")

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	wantHex, err := FormatKeyHex(key.Bytes())
	if err != nil {
		t.Fatalf("FormatKeyHex: %v", err)
	}

	if err := WriteKeyFile(path, key, "correct horse"); err != nil {
		t.Fatalf("WriteKeyFile sealed: %v", err)
	}

	// Missing passphrase must fail loudly, not fall back to hex parsing.
	if _, err := LoadKeyFile(path, ""); err == nil {
		t.Fatal("sealed key file loaded without passphrase")
	}
	if _, err := LoadKeyFile(path, "wrong"); err == nil {
		t.Fatal("sealed key file loaded with wrong passphrase")
	}

	loaded, err := LoadKeyFile(path, "correct horse")
	if err != nil {
		t.Fatalf("LoadKeyFile sealed: %v", err)
	}
	defer loaded.Close()

	gotHex, err := FormatKeyHex(loaded.Bytes())
	if err != nil {
		t.Fatalf("FormatKeyHex: %v", err)
	}
	if gotHex != wantHex {
		t.Errorf("sealed roundtrip changed key")
	}
}
