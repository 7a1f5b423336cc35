package zergapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zerg-ai/jarvis-e2e/internal/poll"
)

// Reset retry tuning. Under parallel workers the backend's reset endpoint
// contends on database locks and intermittently returns 5xx; doubling from
// 250ms with up to 300ms of jitter spreads the retries out so workers stop
// colliding.
const (
	resetBaseDelay = 250 * time.Millisecond
	resetMaxJitter = 300 * time.Millisecond
)

// reset endpoint paths; older deployments mount it under /api.
const (
	resetPath       = "/admin/reset-database"
	resetPathLegacy = "/api/admin/reset-database"
)

type resetRequest struct {
	ResetType string `json:"reset_type"`
}

// ResetDatabase clears this worker's data partition, retrying transient
// failures with exponential backoff plus jitter. Client errors other than
// 404 and 429 are permanent and returned immediately; a 404 falls back to
// the legacy path. Exhausting the attempt budget returns the last error —
// callers treat that as fatal and must not run the test on dirty state.
func (c *Client) ResetDatabase(ctx context.Context, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := poll.Backoff(attempt-1, resetBaseDelay, resetMaxJitter)
			select {
			case <-ctx.Done():
				return fmt.Errorf("reset database: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		err := c.resetOnce(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientResetError(err) {
			return fmt.Errorf("reset database: %w", err)
		}
	}
	return fmt.Errorf("reset database failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) resetOnce(ctx context.Context) error {
	body := resetRequest{ResetType: "clear_data"}
	err := c.do(ctx, http.MethodPost, resetPath, body, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return c.do(ctx, http.MethodPost, resetPathLegacy, body, nil)
	}
	return err
}

// isTransientResetError reports whether a reset failure is worth retrying:
// connection errors, 429 rate limiting, and 5xx lock contention are; other
// 4xx are not.
func isTransientResetError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// Connection-level failure.
		return true
	}
	if apiErr.Status == http.StatusTooManyRequests {
		return true
	}
	return apiErr.Status >= 500
}
