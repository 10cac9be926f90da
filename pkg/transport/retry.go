package transport

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig controls the truncated-exponential backoff used around a
// provider call. Unlike the teacher's codex backend client (which scales
// delay linearly as attempt*RetryDelay), this follows the base/cap/jitter
// shape SPEC_FULL.md §4.1 calls for.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the computed delay to randomize, e.g. 0.2
}

// DefaultRetryConfig matches SPEC_FULL.md §4.2: base 500ms, cap 30s, ±20%.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the backoff delay before the given retry attempt
// (1-indexed: attempt 1 is the delay before the first retry).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := float64(c.BaseDelay) * math.Pow(2, float64(attempt-1))
	capped := math.Min(base, float64(c.MaxDelay))
	if c.Jitter <= 0 {
		return time.Duration(capped)
	}
	spread := capped * c.Jitter
	jittered := capped - spread + rand.Float64()*2*spread
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

// IsRetryableStatus reports whether an HTTP status code should be retried:
// 429 (rate limited) or any 5xx. Matches the teacher's isRetryable in
// pkg/backend/codex/client.go.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// WithRetry runs fn up to cfg.MaxAttempts times, sleeping cfg.Delay between
// attempts, stopping early if shouldRetry returns false for the error fn
// returned, or if ctx is canceled.
func WithRetry(ctx context.Context, cfg RetryConfig, shouldRetry func(error) bool, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.Delay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
