// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that schedule work in the future (handoff expiry, for
// one) take a Clock instead of calling the time package. Production
// code passes Real(); tests pass Fake() and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	broker := broker.New(broker.Config{Clock: c, HandoffTimeout: time.Second})
//	// ... start a handoff ...
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
//
// WaitForTimers closes the race between a goroutine registering a timer
// and the test advancing past it.
package clock
