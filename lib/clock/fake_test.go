// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAndAdvance(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", c.Now(), epoch)
	}
	c.Advance(90 * time.Second)
	if want := epoch.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "third") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "first") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "second-later") })

	c.Advance(time.Second)
	if len(order) != 1 || order[0] != "first" {
		t.Fatalf("after 1s fired %v, want [first]", order)
	}
	c.Advance(5 * time.Second)
	want := []string{"first", "second", "second-later", "third"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for index := range want {
		if order[index] != want[index] {
			t.Fatalf("fired %v, want %v", order, want)
		}
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after all fired", c.PendingCount())
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on a pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
	c.Advance(time.Hour)
	if fired {
		t.Error("stopped timer fired")
	}

	ran := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	if ran.Stop() {
		t.Error("Stop after firing returned true")
	}
}

func TestFakeAfterFuncNonPositive(t *testing.T) {
	c := Fake(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })
	if !fired {
		t.Error("AfterFunc(0) did not run synchronously")
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.AfterFunc(time.Minute, func() { close(done) })
	}()
	c.WaitForTimers(1)
	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire after WaitForTimers and Advance")
	}
}

func TestRealAfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real().AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("real AfterFunc never fired")
	}
}
