// Package file stores the session jar as a JSON array of cookies on disk,
// the same layout a browser cookie export uses.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// SessionStorage keeps the session slot in a single JSON file
type SessionStorage struct {
	path   string
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSessionStorage creates a file-backed session store at path
func NewSessionStorage(path string, logger arbor.ILogger) (interfaces.SessionStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("cookie file path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cookie file directory: %w", err)
		}
	}
	return &SessionStorage{path: path, logger: logger}, nil
}

func (s *SessionStorage) Load(ctx context.Context) (*models.SessionJar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Cookie file unreadable, treating as absent")
		}
		return nil, false
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Cookie file unreadable, treating as absent")
		return nil, false
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Cookie file corrupt, treating as absent")
		return nil, false
	}
	jar := &models.SessionJar{Cookies: cookies, SavedAt: info.ModTime()}
	if jar.Empty() {
		return nil, false
	}
	return jar, true
}

func (s *SessionStorage) Save(ctx context.Context, jar *models.SessionJar) error {
	if jar.Empty() {
		return fmt.Errorf("session jar has no cookies")
	}

	data, err := json.MarshalIndent(jar.Cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cookies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a sibling temp file and rename so readers never see a torn file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cookie file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set cookie file permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}

	if !jar.SavedAt.IsZero() {
		_ = os.Chtimes(s.path, time.Now(), jar.SavedAt)
	}

	s.logger.Debug().Int("cookies", len(jar.Cookies)).Str("path", s.path).Msg("Session jar saved")
	return nil
}

func (s *SessionStorage) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to delete cookie file")
		}
		return
	}
	s.logger.Info().Str("path", s.path).Msg("Session jar invalidated")
}

func (s *SessionStorage) Close() error {
	return nil
}
