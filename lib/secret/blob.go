// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// Blob is a block of secret bytes outside the Go heap. It must not be
// copied after creation. Reads after Close panic.
type Blob struct {
	mu     sync.Mutex
	region []byte
	length int
	closed bool
}

// allocate maps size bytes of locked, non-dumpable memory. A zero size
// maps nothing.
func allocate(size int) (*Blob, error) {
	if size < 0 {
		return nil, fmt.Errorf("secret: size must not be negative, got %d", size)
	}
	if size == 0 {
		return &Blob{}, nil
	}
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return &Blob{region: region, length: size}, nil
}

// NewFromBytes moves source into a new Blob. source is zeroed in place
// whether or not the move succeeds. An empty source yields an empty
// Blob.
func NewFromBytes(source []byte) (*Blob, error) {
	defer Zero(source)
	blob, err := allocate(len(source))
	if err != nil {
		return nil, err
	}
	copy(blob.region, source)
	return blob, nil
}

// Bytes returns the secret. The slice aliases the locked region and
// must not outlive the Blob.
func (b *Blob) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed blob")
	}
	return b.region[:b.length]
}

// String returns a heap copy of the secret, for API boundaries that
// only take strings.
func (b *Blob) String() string {
	return string(b.Bytes())
}

// Len returns the length of the secret.
func (b *Blob) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Equal compares the secret with other in constant time.
func (b *Blob) Equal(other []byte) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), other) == 1
}

// Fingerprint returns the hex BLAKE3 digest of the secret keyed with
// key, truncated to 16 bytes. The key must be 32 bytes.
func (b *Blob) Fingerprint(key [32]byte) string {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("secret: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(b.Bytes())
	var digest [32]byte
	hasher.Sum(digest[:0])
	return hex.EncodeToString(digest[:16])
}

// Close zeros, unlocks, and unmaps the region. Idempotent.
func (b *Blob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.region == nil {
		return nil
	}

	Zero(b.region)
	var firstError error
	if err := unix.Munlock(b.region); err != nil {
		firstError = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.region); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap: %w", err)
	}
	b.region = nil
	return firstError
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
