package orchestrator

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/models"
)

// RetryPolicy retries whole acquisition attempts with a fixed delay
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// NewRetryPolicy creates the default policy: three attempts, two seconds apart
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// ShouldRetry reports whether attempt (1-based) may be followed by another
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if err == nil {
		return false
	}
	return models.IsRetryable(err)
}

// Execute runs fn until it succeeds, fails with a final error, or the
// attempts run out. The last error is returned unchanged along with the
// number of attempts spent.
func (p RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, fn func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, lastErr
		}

		if !p.ShouldRetry(attempt, lastErr) {
			if attempt < maxAttempts {
				logger.Warn().
					Int("attempt", attempt).
					Str("kind", string(models.KindOf(lastErr))).
					Err(lastErr).
					Msg("Non-retryable error, failing immediately")
			}
			return attempt, lastErr
		}

		logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Err(lastErr).
			Dur("delay", p.Delay).
			Msg("Attempt failed, retrying after delay")

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}

	logger.Error().
		Int("max_attempts", maxAttempts).
		Err(lastErr).
		Msg("All attempts exhausted")
	return maxAttempts, lastErr
}
