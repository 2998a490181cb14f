// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations the switchboard uses.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f after d. If d <= 0 f runs immediately: in a new
	// goroutine for the real clock, synchronously for the fake.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop cancels the pending call. Returns false if it already ran or
// was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
