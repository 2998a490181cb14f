// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts the privileged-data bundle with
// age (filippo.io/age).
//
// A bundle is sealed to one or more x25519 recipients and stored
// ASCII-armored on disk. Opening it requires the matching identity,
// which is itself kept in a [secret.Blob]; the decrypted plaintext is
// returned as a Blob too, so neither the key nor the bundle contents
// linger on the Go heap.
package sealed

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/switchboard/lib/secret"
)

// MaxBundleSize bounds the plaintext Open will accept.
const MaxBundleSize = 1 << 20

// Keypair is an age x25519 identity and its recipient string.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... identity.
	PrivateKey *secret.Blob

	// PublicKey is the age1... recipient. Safe to publish.
	PublicKey string
}

// Close releases the private key.
func (k *Keypair) Close() error {
	if k.PrivateKey == nil {
		return nil
	}
	return k.PrivateKey.Close()
}

// GenerateKeypair generates a fresh x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting age identity: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// ParsePublicKey validates an age1... recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// Seal encrypts plaintext to every recipient and returns the armored
// ciphertext.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("sealing: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Open decrypts an armored bundle with privateKey. privateKey is
// borrowed, not closed.
func Open(ciphertext io.Reader, privateKey *secret.Blob) (*secret.Blob, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting bundle: %w", err)
	}
	plaintext, err := secret.ReadFrom(reader, MaxBundleSize)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	return plaintext, nil
}

// OpenFile decrypts the bundle at bundlePath with the identity stored
// in identityPath.
func OpenFile(bundlePath, identityPath string) (*secret.Blob, error) {
	privateKey, err := secret.ReadFile(identityPath)
	if err != nil {
		return nil, err
	}
	defer privateKey.Close()

	bundle, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	defer bundle.Close()
	return Open(bundle, privateKey)
}
