// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package host holds the thin host services the switchboard core calls
// through narrow interfaces, plus an in-process implementation of
// execution contexts.
//
// A [View] is one sandboxed (or privileged) execution context: its
// identity, its single-threaded event loop, its window, the push
// channels its renderer-side code subscribes to, its one-shot
// lifecycle signals (ready-to-show, did-finish-load, destroyed), and
// its main world. Views are created and torn down through a
// [Registry]; the core only ever looks them up by ID, so a torn-down
// view simply stops resolving and deliveries to it become no-ops
// ([ErrTargetUnavailable]).
//
// Navigation, sub-view attachment, permission requests, and window
// opens on a View consult its [Guard] (implemented by package gate)
// and are cancelled when denied.
//
// The remaining collaborators are interfaces with small
// implementations: [Dialog] (file pickers), [SecretSource] (privileged
// data), and [Shell] (operating-system URL opener).
package host
