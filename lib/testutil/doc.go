// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for switchboard
// packages.
//
// Nearly everything in switchboard delivers asynchronously: endpoint
// messages arrive on a dispatch loop, router listeners run on the
// privileged loop, and pushes land on a view's loop. Tests observe that
// delivery by having handlers write into a Go channel and reading it
// with [RequireReceive], which fails the test instead of hanging when
// nothing arrives. [RequireNoReceive] asserts the opposite for deny
// paths, and [RequireClosed] waits for readiness channels.
//
// [UniqueID] generates distinguishable identifiers for views and
// payloads.
//
// All helpers call t.Fatalf on failure.
package testutil
