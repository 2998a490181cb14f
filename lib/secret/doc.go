// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds privileged data in memory the Go runtime never
// sees.
//
// A [Blob] is backed by an anonymous mmap region that is locked into
// RAM (mlock), excluded from core dumps (MADV_DONTDUMP), and zeroed and
// unmapped on Close. Privileged data handed to a context by the
// coordinator passes through a Blob between the secret source and the
// reply, so the plaintext never sits in a heap-allocated buffer longer
// than the encode of the reply itself.
//
// [Blob.Fingerprint] produces a keyed BLAKE3 digest suitable for audit
// logs: two reads of the same secret log the same fingerprint, and the
// fingerprint reveals nothing about the value without the key.
package secret
