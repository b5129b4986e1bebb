// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/messaging"
)

// RetryPolicy computes reconnect and resend delays. The first retry is
// immediate; subsequent delays grow exponentially from Base up to Max,
// with up to Jitter of random spread added so restarting bots don't
// reconnect in lockstep.
type RetryPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	// rand defaults to the global source; tests inject a seeded one.
	rand *rand.Rand
}

// DefaultRetryPolicy is the reconnect policy used by SessionManager:
// immediate, then 1s doubling to a 30s ceiling with 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Second, Max: 30 * time.Second, Jitter: 0.2}
}

// Delay returns the wait before retry attempt n (n starts at 0).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := p.Base << (attempt - 1)
	if delay > p.Max || delay <= 0 {
		delay = p.Max
	}
	if p.Jitter > 0 {
		spread := p.Jitter * float64(delay)
		if p.rand != nil {
			delay += time.Duration(p.rand.Float64() * spread)
		} else {
			delay += time.Duration(rand.Float64() * spread)
		}
		if delay > p.Max {
			delay = p.Max
		}
	}
	return delay
}

// Wait sleeps for the attempt's delay on the given clock, returning
// early with the context's error if it is cancelled.
func (p RetryPolicy) Wait(ctx context.Context, clk clock.Clock, attempt int) error {
	delay := p.Delay(attempt)
	if delay == 0 {
		return ctx.Err()
	}
	select {
	case <-clk.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendMaxAttempts bounds outbound send retries. Reconnects are
// unbounded; sends are not, so a persistently failing message is
// dropped (with a log entry) rather than wedging dispatch.
const sendMaxAttempts = 3

// isTransientError reports whether a send failure is worth retrying.
// Rate limits and server errors are transient. Other Matrix 4xx codes
// are permanent: the same request will fail the same way. Non-Matrix
// errors (network failures, timeouts) are transient.
func isTransientError(err error) bool {
	var matrixErr *messaging.MatrixError
	if errors.As(err, &matrixErr) {
		if matrixErr.Code == messaging.ErrCodeLimitExceeded {
			return true
		}
		return matrixErr.StatusCode >= 500
	}
	return true
}
