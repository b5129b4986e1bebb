// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations the bot performs so tests can
// drive them deterministically. Production code injects Real(); tests
// inject Fake() and advance it by hand.
//
// Anything that would call time.Now, time.After, or time.Sleep should
// take a Clock (or live on a struct with a Clock field) instead of
// reaching for the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}
