package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// sessionRecord is the badgerhold row for the identity's cookie jar.
// Cookies are kept as serialized JSON so a schema change in models.Cookie
// surfaces as a decode failure rather than a partially filled jar.
type sessionRecord struct {
	Key       string
	Cookies   []byte
	SavedAt   int64
	UpdatedAt int64
}

// SessionStorage keeps the single session slot in Badger
type SessionStorage struct {
	db     *BadgerDB
	key    string
	logger arbor.ILogger
}

// NewSessionStorage creates a session store keyed by the identity email
func NewSessionStorage(db *BadgerDB, key string, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		key:    "session:" + key,
		logger: logger,
	}
}

func (s *SessionStorage) Load(ctx context.Context) (*models.SessionJar, bool) {
	var rec sessionRecord
	if err := s.db.Store().Get(s.key, &rec); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", s.key).Msg("Session record unreadable, treating as absent")
		}
		return nil, false
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(rec.Cookies, &cookies); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Session cookies corrupt, treating as absent")
		return nil, false
	}
	jar := &models.SessionJar{
		Cookies: cookies,
		SavedAt: time.Unix(rec.SavedAt, 0),
	}
	if jar.Empty() {
		return nil, false
	}
	return jar, true
}

func (s *SessionStorage) Save(ctx context.Context, jar *models.SessionJar) error {
	if jar.Empty() {
		return fmt.Errorf("session jar has no cookies")
	}

	data, err := json.Marshal(jar.Cookies)
	if err != nil {
		return fmt.Errorf("failed to serialize cookies: %w", err)
	}

	savedAt := jar.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	rec := &sessionRecord{
		Key:       s.key,
		Cookies:   data,
		SavedAt:   savedAt.Unix(),
		UpdatedAt: time.Now().Unix(),
	}

	if err := s.db.Store().Upsert(s.key, rec); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Debug().Int("cookies", len(jar.Cookies)).Msg("Session jar saved")
	return nil
}

func (s *SessionStorage) Invalidate(ctx context.Context) {
	if err := s.db.Store().Delete(s.key, &sessionRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return // Already deleted
		}
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Failed to invalidate session")
		return
	}
	s.logger.Info().Msg("Session jar invalidated")
}

func (s *SessionStorage) Close() error {
	return s.db.Close()
}
