// Package poll implements bounded condition polling, the suite's
// replacement for fixed-duration sleeps. A caller names the condition it is
// waiting for; timeouts produce an error that names that condition so a
// failed test says what never happened instead of just "context deadline
// exceeded".
package poll

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// DefaultInterval is used when a zero interval is passed.
const DefaultInterval = 100 * time.Millisecond

// TimeoutError reports a condition that never became true within its
// deadline.
type TimeoutError struct {
	Condition string
	Waited    time.Duration
	Attempts  int
	// LastErr is the error from the final predicate evaluation, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("timed out after %v (%d attempts) waiting for %s: last error: %v",
			e.Waited.Round(time.Millisecond), e.Attempts, e.Condition, e.LastErr)
	}
	return fmt.Sprintf("timed out after %v (%d attempts) waiting for %s",
		e.Waited.Round(time.Millisecond), e.Attempts, e.Condition)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// IsTimeout reports whether err is a polling timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Until evaluates cond every interval until it returns true, the context is
// done, or cond returns a permanent error. The condition is evaluated once
// immediately, so an already-true condition returns without sleeping. A
// predicate error is treated as "not yet" and retried; wrap with Permanent
// to abort early.
func Until(ctx context.Context, interval time.Duration, condition string, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()
	attempts := 0
	var lastErr error

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		attempts++
		ok, err := cond(ctx)
		if ok {
			return nil
		}
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return fmt.Errorf("waiting for %s: %w", condition, perm.err)
			}
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return &TimeoutError{
				Condition: condition,
				Waited:    time.Since(start),
				Attempts:  attempts,
				LastErr:   lastErr,
			}
		case <-ticker.C:
		}
	}
}

// UntilTimeout is Until with a deadline instead of a caller-owned context.
func UntilTimeout(ctx context.Context, timeout, interval time.Duration, condition string, cond func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return Until(ctx, interval, condition, cond)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a predicate error as non-retryable. Until stops polling
// and returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff computes the delay before retry attempt n (0-based) with
// exponential growth from base and uniform jitter in [0, maxJitter). The
// growth is capped at 10 doublings to avoid overflow on absurd budgets.
func Backoff(attempt int, base, maxJitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	d := base * time.Duration(1<<uint(attempt))
	if maxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(maxJitter)))
	}
	return d
}
