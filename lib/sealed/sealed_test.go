// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key does not have the AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want age1 prefix", keypair.PublicKey)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}
}

func TestSealOpen(t *testing.T) {
	keypair := generate(t)
	ciphertext, err := Seal([]byte("privileged data"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !bytes.HasPrefix(ciphertext, []byte("-----BEGIN AGE ENCRYPTED FILE-----")) {
		t.Errorf("ciphertext is not armored: %q", ciphertext[:32])
	}
	if bytes.Contains(ciphertext, []byte("privileged data")) {
		t.Fatal("ciphertext contains plaintext")
	}

	plaintext, err := Open(bytes.NewReader(ciphertext), keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer plaintext.Close()
	if plaintext.String() != "privileged data" {
		t.Errorf("Open = %q", plaintext.String())
	}
}

func TestSealMultipleRecipients(t *testing.T) {
	first := generate(t)
	second := generate(t)
	ciphertext, err := Seal([]byte("shared"), []string{first.PublicKey, second.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	for _, keypair := range []*Keypair{first, second} {
		plaintext, err := Open(bytes.NewReader(ciphertext), keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Open with %s: %v", keypair.PublicKey, err)
		}
		if plaintext.String() != "shared" {
			t.Errorf("Open with %s = %q", keypair.PublicKey, plaintext.String())
		}
		plaintext.Close()
	}
}

func TestOpenWrongKey(t *testing.T) {
	owner := generate(t)
	stranger := generate(t)
	ciphertext, err := Seal([]byte("data"), []string{owner.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(bytes.NewReader(ciphertext), stranger.PrivateKey); err == nil {
		t.Fatal("Open with the wrong identity succeeded")
	}
}

func TestSealRejectsBadRecipients(t *testing.T) {
	if _, err := Seal([]byte("data"), nil); err == nil {
		t.Error("Seal with no recipients succeeded")
	}
	if _, err := Seal([]byte("data"), []string{"not-a-key"}); err == nil {
		t.Error("Seal with an invalid recipient succeeded")
	}
}

func TestOpenFile(t *testing.T) {
	keypair := generate(t)
	ciphertext, err := Seal([]byte("from disk\n"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	directory := t.TempDir()
	bundlePath := filepath.Join(directory, "secrets.age")
	identityPath := filepath.Join(directory, "identity")
	if err := os.WriteFile(bundlePath, ciphertext, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(identityPath, []byte(keypair.PrivateKey.String()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	plaintext, err := OpenFile(bundlePath, identityPath)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer plaintext.Close()
	if plaintext.String() != "from disk" {
		t.Errorf("OpenFile = %q, want trimmed plaintext", plaintext.String())
	}
}
