// Package retry implements the exponential-backoff policy spec.md §7.3
// requires of every downstream I/O failure: retry up to 5 attempts, then
// demote the caller to dry-run semantics. Grounded on the teacher's
// RunDailySettlementWithRetry (internal/settlement/error_handling.go):
// same bounded-attempts loop with a ctx-aware sleep between tries,
// generalized from its fixed per-attempt delay table into a doubling
// BaseDelay/MaxDelay policy and from settlement-specific retryability
// classification into a plain func() error, since this spec has no
// per-user settlement phases to classify.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy configures a retry run.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is "5 attempts in total with doubling backoff" per spec.md §7.3.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, ctx is cancelled, or MaxAttempts is
// exhausted. It returns the last error on exhaustion so the caller can
// demote to dry-run and emit a structured warning per spec.md §7.3.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return lastErr
}
