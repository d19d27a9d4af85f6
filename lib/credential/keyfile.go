// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/outpost/lib/secret"
)

// ageHeaderPrefix is the first line of every age-encrypted file.
// LoadKeyFile uses it to distinguish sealed key files from plain hex.
const ageHeaderPrefix = "age-encryption.org/"

// GenerateKey produces a fresh random connection key in a secret
// buffer.
func GenerateKey() (*secret.Buffer, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("generating connection key: %w", err)
	}
	// NewFromBytes zeros raw after copying.
	return secret.NewFromBytes(raw)
}

// WriteKeyFile writes the key to path as 64 lowercase hex characters
// with mode 0600. If passphrase is non-empty, the hex text is sealed
// with age scrypt encryption first.
func WriteKeyFile(path string, key *secret.Buffer, passphrase string) error {
	hexKey, err := FormatKeyHex(key.Bytes())
	if err != nil {
		return err
	}

	contents := []byte(hexKey + "\n")
	if passphrase != "" {
		recipient, err := age.NewScryptRecipient(passphrase)
		if err != nil {
			return fmt.Errorf("preparing age recipient: %w", err)
		}

		var sealed bytes.Buffer
		writer, err := age.Encrypt(&sealed, recipient)
		if err != nil {
			return fmt.Errorf("creating age encryptor: %w", err)
		}
		if _, err := writer.Write(contents); err != nil {
			return fmt.Errorf("sealing key file: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("finalizing age encryption: %w", err)
		}
		secret.Zero(contents)
		contents = sealed.Bytes()
	}

	if err := os.WriteFile(path, contents, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// LoadKeyFile reads a connection key from path. Plain files hold the
// key as hex; age-sealed files (detected by their header line) are
// decrypted with the given passphrase first. Loading a sealed file
// with an empty passphrase is an error.
func LoadKeyFile(path, passphrase string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(data, []byte(ageHeaderPrefix)) {
		if passphrase == "" {
			return nil, fmt.Errorf("key file %s is age-sealed but no passphrase was provided", path)
		}
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return nil, fmt.Errorf("preparing age identity: %w", err)
		}
		reader, err := age.Decrypt(bytes.NewReader(data), identity)
		if err != nil {
			return nil, fmt.Errorf("unsealing key file %s: %w", path, err)
		}
		data, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("reading unsealed key: %w", err)
		}
	}

	hexKey := strings.TrimSpace(string(data))
	buffer, err := secret.DecodeHexKey(hexKey, KeySize)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	secret.Zero(data)
	return buffer, nil
}
