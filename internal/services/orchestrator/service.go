// Package orchestrator runs the acquire-and-dispatch pipeline under a
// bounded retry policy, one pipeline at a time.
package orchestrator

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// Service implements interfaces.Broker
type Service struct {
	engine     interfaces.SessionEngine
	locator    interfaces.ResourceLocator
	dispatcher interfaces.Dispatcher
	store      interfaces.SessionStorage
	policy     RetryPolicy
	logger     arbor.ILogger

	mu sync.Mutex // serializes pipelines; one identity, one browser at a time

	lastMu sync.RWMutex
	last   *models.AcquisitionAttempt
}

// NewService creates the orchestrator
func NewService(
	engine interfaces.SessionEngine,
	locator interfaces.ResourceLocator,
	dispatcher interfaces.Dispatcher,
	store interfaces.SessionStorage,
	policy RetryPolicy,
	logger arbor.ILogger,
) *Service {
	return &Service{
		engine:     engine,
		locator:    locator,
		dispatcher: dispatcher,
		store:      store,
		policy:     policy,
		logger:     logger,
	}
}

// AcquireAndDispatch acquires a session, locates resourceID and dispatches
// it. Every retry starts from a fresh browser.
func (s *Service) AcquireAndDispatch(ctx context.Context, resourceID string) (*models.DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithCorrelationId(resourceID)
	logger.Info().Str("resource_id", resourceID).Msg("Acquire and dispatch requested")

	var result models.DispatchResult
	attempts, err := s.policy.Execute(ctx, logger, func(n int) error {
		attempt, err := s.engine.WithSession(ctx, n, func(ctx context.Context, page interfaces.Page, cred models.Credential) error {
			ref, err := s.locator.Locate(ctx, page, resourceID)
			if err != nil {
				return err
			}
			if err := s.dispatcher.Dispatch(ctx, cred, ref); err != nil {
				return err
			}
			result.Credential = cred
			result.ResourceReference = ref
			return nil
		})
		s.remember(attempt)
		return err
	})
	if err != nil {
		logger.Error().
			Int("attempts", attempts).
			Str("kind", string(models.KindOf(err))).
			Err(err).
			Msg("Acquire and dispatch failed")
		return nil, err
	}

	result.Attempts = attempts
	logger.Info().
		Int("attempts", attempts).
		Str("reference", result.ResourceReference.Reference).
		Msg("Acquire and dispatch completed")
	return &result, nil
}

// WarmSession acquires a session without dispatching, refreshing the
// stored jar
func (s *Service) WarmSession(ctx context.Context) (*models.AcquisitionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *models.AcquisitionAttempt
	_, err := s.policy.Execute(ctx, s.logger, func(n int) error {
		attempt, err := s.engine.WithSession(ctx, n, nil)
		s.remember(attempt)
		last = attempt
		return err
	})
	return last, err
}

// ClearSession drops the stored jar. It waits for any running pipeline.
func (s *Service) ClearSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Invalidate(ctx)
	s.logger.Info().Msg("Session jar cleared")
}

// Status reports the stored jar and the most recent attempt
func (s *Service) Status(ctx context.Context) models.SessionStatus {
	var status models.SessionStatus
	if jar, ok := s.store.Load(ctx); ok {
		status.JarPresent = true
		status.JarCookies = len(jar.Cookies)
		savedAt := jar.SavedAt
		status.JarSavedAt = &savedAt
	}

	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last != nil {
		snapshot := *s.last
		status.LastAttempt = &snapshot
	}
	return status
}

func (s *Service) remember(attempt *models.AcquisitionAttempt) {
	if attempt == nil {
		return
	}
	s.lastMu.Lock()
	s.last = attempt
	s.lastMu.Unlock()
}
