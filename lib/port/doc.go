// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package port implements entangled message endpoints.
//
// [NewChannel] creates two [Endpoint] values atomically. A [Message]
// posted on one is observable, in post order, only on the other.
// Messages posted before the receiver has attached a handler with
// [Endpoint.OnMessage] and called [Endpoint.Start] are queued, never
// dropped. Each started endpoint dispatches on its own event loop, so
// handlers for one endpoint never run concurrently with each other.
//
// Endpoints are move-only. Attaching an endpoint to a message and
// posting it (or calling [Message.Transfer]) detaches the sender's
// handle: every later operation on it returns [ErrDetached], and the
// receiver gets a fresh handle with exclusive rights. Handlers and the
// started state do not travel with the endpoint; the new owner attaches
// its own and starts it. Queued inbound messages do travel.
//
// [Endpoint.Close] is the only cancellation primitive. The closer's
// state changes immediately. The peer sees its close handler fire
// after every message queued ahead of the close has been dispatched,
// which is what makes close a reliable end-of-stream marker. Closing
// twice is a no-op. Messages posted toward a closed endpoint are
// silently discarded.
package port
