// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the two scheduling primitives every execution
// context is built from.
//
// [Loop] is a single-threaded cooperative executor: funcs posted to it
// run one at a time, in post order, on a goroutine owned by the loop.
// Posting never blocks; the queue is unbounded. A context's handlers
// all run on its loop, so handler code never needs locks for state that
// only the context touches.
//
// [Emitter] is a named-event subscription registry layered on a Loop.
// Subscribe returns a [Subscription] handle; Unsubscribe removes it.
// Once subscriptions fire at most one time and stay cancellable until
// that delivery runs. Delivery to each subscriber is in emit order.
package event
