package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// SessionHandler exposes the stored session for operators
type SessionHandler struct {
	broker    interfaces.Broker
	keepalive interfaces.KeepaliveReporter
	token     string
	timeout   time.Duration
	logger    arbor.ILogger
}

// NewSessionHandler creates a session handler. keepalive may be nil when
// no scheduler runs.
func NewSessionHandler(broker interfaces.Broker, keepalive interfaces.KeepaliveReporter, token string, timeout time.Duration, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		broker:    broker,
		keepalive: keepalive,
		token:     token,
		timeout:   timeout,
		logger:    logger,
	}
}

// StatusHandler handles GET /api/session
func (h *SessionHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireToken(w, r, h.token) {
		return
	}
	status := h.broker.Status(r.Context())
	if h.keepalive != nil {
		lastRun, lastErr := h.keepalive.LastRun()
		status.Keepalive = &models.KeepaliveStatus{LastRun: lastRun, LastError: lastErr}
	}
	WriteJSON(w, http.StatusOK, status)
}

// ClearHandler handles DELETE /api/session
func (h *SessionHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireToken(w, r, h.token) {
		return
	}
	h.broker.ClearSession(r.Context())
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Session cleared via API")
	WriteSuccess(w, "Session cleared")
}

// RefreshHandler handles POST /api/session/refresh
func (h *SessionHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	if !RequireToken(w, r, h.token) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	attempt, err := h.broker.WarmSession(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Session refresh failed")
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"attempt": attempt,
	})
}
