package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/models"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"success", 1, nil, false},
		{"capture timeout", 1, models.NewError(models.KindCredentialCaptureFailed, "", nil), true},
		{"untyped", 2, errors.New("boom"), true},
		{"last attempt", 3, models.NewError(models.KindLaunch, "", nil), false},
		{"dispatch rejected", 1, models.NewDispatchRejected(422, "{}"), false},
		{"totp", 1, models.NewError(models.KindTotpGeneration, "", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.err))
		})
	}
}

func TestRetryPolicy_Execute(t *testing.T) {
	logger := arbor.NewLogger()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		n, err := RetryPolicy{MaxAttempts: 3}.Execute(context.Background(), logger, func(attempt int) error {
			calls++
			assert.Equal(t, calls, attempt)
			if attempt < 3 {
				return models.NewError(models.KindCredentialCaptureFailed, "", nil)
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("returns last error verbatim", func(t *testing.T) {
		last := errors.New("third")
		n, err := RetryPolicy{MaxAttempts: 3}.Execute(context.Background(), logger, func(attempt int) error {
			if attempt == 3 {
				return last
			}
			return errors.New("earlier")
		})
		assert.Same(t, last, err)
		assert.Equal(t, 3, n)
	})

	t.Run("stops on final error", func(t *testing.T) {
		calls := 0
		n, err := RetryPolicy{MaxAttempts: 3}.Execute(context.Background(), logger, func(int) error {
			calls++
			return models.NewDispatchRejected(500, "down")
		})
		assert.True(t, errors.Is(err, models.ErrDispatchRejected))
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, n)
	})

	t.Run("cancelled during delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		n, err := RetryPolicy{MaxAttempts: 3, Delay: time.Hour}.Execute(ctx, logger, func(int) error {
			calls++
			cancel()
			return errors.New("transient")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, n)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_, _ = RetryPolicy{}.Execute(context.Background(), logger, func(int) error {
			calls++
			return errors.New("x")
		})
		assert.Equal(t, 1, calls)
	})
}
