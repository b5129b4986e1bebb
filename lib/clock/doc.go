// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Production code accepts a Clock instead of calling time.Now,
// time.After, or time.Sleep directly. Real() provides standard
// library behavior; Fake() provides a deterministic clock that
// advances only when the test says so.
//
// Structs that use time carry a Clock field:
//
//	type Manager struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := &Manager{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)         // goroutine has registered its wait
//	c.Advance(5 * time.Second) // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering an
// After or Sleep and the test advancing the clock, which is what
// time.Sleep-based test synchronization gets wrong.
package clock
