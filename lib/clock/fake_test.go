// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)
	if !fake.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", fake.Now(), start)
	}
	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("Now() after advance = %v", got)
	}
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before advance")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(time.Unix(1005, 0)) {
			t.Errorf("fire time = %v, want 1005", fired)
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should deliver immediately")
	}
}

func TestFakeAfterFunc(t *testing.T) {
	fake := Fake(time.Unix(0, 0))

	t.Run("fires at deadline", func(t *testing.T) {
		called := false
		fake.AfterFunc(time.Minute, func() { called = true })
		fake.Advance(time.Minute)
		if !called {
			t.Fatal("callback not invoked")
		}
	})

	t.Run("stop prevents firing", func(t *testing.T) {
		called := false
		timer := fake.AfterFunc(time.Minute, func() { called = true })
		if !timer.Stop() {
			t.Fatal("Stop() = false for an active timer")
		}
		fake.Advance(time.Minute)
		if called {
			t.Fatal("callback invoked after Stop")
		}
		if timer.Stop() {
			t.Fatal("second Stop() should return false")
		}
	})

	t.Run("stop after firing returns false", func(t *testing.T) {
		timer := fake.AfterFunc(time.Second, func() {})
		fake.Advance(time.Second)
		if timer.Stop() {
			t.Fatal("Stop() = true for a fired timer")
		}
	})

	t.Run("zero duration runs synchronously", func(t *testing.T) {
		called := false
		fake.AfterFunc(0, func() { called = true })
		if !called {
			t.Fatal("callback should run before AfterFunc returns")
		}
	})
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	var order []int
	fake.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	fake.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	fake.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	fake.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("fire order = %v, want [1 2 3]", order)
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		fake.Sleep(10 * time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after advance")
	}
	if fake.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d after all timers fired", fake.PendingCount())
	}
}
