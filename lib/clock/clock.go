// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations so that timeout behavior can be
// tested deterministically. Production code injects Real(); tests
// inject Fake() and drive time with Advance.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f. The returned Timer
	// cancels the pending call with Stop. If d <= 0, f runs in a new
	// goroutine (real) or synchronously (fake).
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Timer is a scheduled one-shot event created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It returns true if the call
// stops the timer, false if the timer already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
