// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker mints channels and hands one endpoint to each of two
// contexts, after which the contexts talk directly and the broker sees
// nothing further.
//
// Three flows are supported:
//
//   - Worker channels ([Broker.ConnectWorker]): a view asks for a
//     channel to a worker. The request is honored only if the sender
//     is exactly the context pre-registered for that route
//     ([Broker.AllowWorkerChannel]); anything else is dropped without
//     creating a channel.
//   - Early-bound handoff ([Broker.Handoff]): a channel is created up
//     front and each end is delivered once its context signals ready.
//     Each end is delivered at most once; an end whose context is torn
//     down, or misses the optional deadline, is closed instead.
//   - Inbound ports ([Broker.AcceptPort]): endpoints sent up by
//     sandboxed contexts are passed to a [PortHandler].
//
// Delivery to a context that no longer exists closes the endpoint, so
// the peer observes termination rather than waiting forever.
package broker
