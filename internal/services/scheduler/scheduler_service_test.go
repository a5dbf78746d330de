package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/models"
)

type countingWarmer struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (w *countingWarmer) WarmSession(ctx context.Context) (*models.AcquisitionAttempt, error) {
	w.calls.Add(1)
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	return &models.AcquisitionAttempt{Outcome: models.OutcomeReused}, nil
}

func TestStart_EmptyScheduleDisabled(t *testing.T) {
	s := NewService(&countingWarmer{}, time.Second, arbor.NewLogger())

	require.NoError(t, s.Start(""))
	require.NoError(t, s.Stop())
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := NewService(&countingWarmer{}, time.Second, arbor.NewLogger())

	assert.Error(t, s.Start("every tuesday"))
}

func TestStart_Twice(t *testing.T) {
	s := NewService(&countingWarmer{}, time.Second, arbor.NewLogger())
	require.NoError(t, s.Start("*/30 * * * *"))
	defer s.Stop()

	assert.Error(t, s.Start("*/30 * * * *"))
}

func TestRunKeepalive_RecordsOutcome(t *testing.T) {
	w := &countingWarmer{err: errors.New("capture timeout")}
	s := NewService(w, time.Second, arbor.NewLogger())

	s.runKeepalive()

	last, lastErr := s.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, "capture timeout", lastErr)
	assert.Equal(t, int32(1), w.calls.Load())
}

func TestRunKeepalive_SkipsOverlappingTick(t *testing.T) {
	w := &countingWarmer{block: make(chan struct{})}
	s := NewService(w, time.Minute, arbor.NewLogger())

	done := make(chan struct{})
	go func() {
		s.runKeepalive()
		close(done)
	}()
	require.Eventually(t, func() bool { return w.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.runKeepalive()
	assert.Equal(t, int32(1), w.calls.Load())

	close(w.block)
	<-done
}

func TestStop_CancelsRunningKeepalive(t *testing.T) {
	w := &countingWarmer{block: make(chan struct{})}
	s := NewService(w, time.Minute, arbor.NewLogger())

	done := make(chan struct{})
	go func() {
		s.runKeepalive()
		close(done)
	}()
	require.Eventually(t, func() bool { return w.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not observe cancellation")
	}
	_, lastErr := s.LastRun()
	assert.Contains(t, lastErr, "context canceled")
}
