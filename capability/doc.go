// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability is the bridge that hands a fixed API surface into
// a sandboxed context.
//
// A [Table] is built once per context from a list of [Declaration]s,
// before any of the context's own code runs, and is read-only
// afterward: there is no way to add, remove, or replace an entry. The
// entries are enumerable ([Table.Names], [Table.Descriptors]) and each
// one has a fixed shape:
//
//	value      no arguments; returns a snapshot taken when the table was built
//	invoke     request/response on one router channel
//	send       fire-and-forget on one router channel
//	sync       legacy blocking call on one router channel
//	subscribe  registers a handler for pushes on one channel
//
// Operation entries carry no logic of their own. Each forwards its
// arguments to exactly one named channel through the context's
// [Conduit] (an ipc.Renderer), so widening what a context can reach
// means changing a declaration, never negotiating at runtime.
//
// [Install] builds the standard API and versions tables for a view and
// wires the main-world port forwarder. [SocketServer] serves one table
// on a Unix socket for out-of-process sandboxes; the socket is bound to
// a single context's conduit, so a caller cannot choose whose identity
// its requests carry.
package capability
