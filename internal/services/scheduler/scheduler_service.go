package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// SessionWarmer is the part of the broker the scheduler drives
type SessionWarmer interface {
	WarmSession(ctx context.Context) (*models.AcquisitionAttempt, error)
}

// Service periodically refreshes the stored session so webhook calls can
// reuse it instead of signing in
type Service struct {
	warmer  SessionWarmer
	cron    *cron.Cron
	logger  arbor.ILogger
	timeout time.Duration

	mu        sync.Mutex
	running   bool
	isRunning bool
	lastRun   *time.Time
	lastError string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a keep-alive scheduler. timeout bounds each run.
func NewService(warmer SessionWarmer, timeout time.Duration, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		warmer:  warmer,
		cron:    cron.New(),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the keep-alive under cronExpr and starts the cron loop.
// An empty expression leaves the scheduler disabled.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		s.logger.Info().Msg("Session keep-alive disabled")
		return nil
	}
	if err := common.ValidateSchedule(cronExpr); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runKeepalive); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("cron_expr", cronExpr).Msg("Session keep-alive scheduled")
	return nil
}

// Stop halts the cron loop, cancels a keep-alive in flight and waits for it
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// runKeepalive runs one warm-up. Overlapping ticks are skipped.
func (s *Service) runKeepalive() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Debug().Msg("Keep-alive still running, skipping tick")
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered from panic in keep-alive")
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	attempt, err := s.warmer.WarmSession(ctx)

	s.mu.Lock()
	s.lastRun = &start
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Session keep-alive failed")
		return
	}
	outcome := ""
	if attempt != nil {
		outcome = string(attempt.Outcome)
	}
	s.logger.Info().Str("outcome", outcome).Dur("elapsed", time.Since(start)).Msg("Session keep-alive completed")
}

// LastRun returns when the keep-alive last ran and its error, if any
func (s *Service) LastRun() (*time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastError
}
