package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/models"
)

const testToken = "s3cret"

type fakeBroker struct {
	result  *models.DispatchResult
	err     error
	calls   []string
	cleared int
	ctxErr  error
}

func (b *fakeBroker) AcquireAndDispatch(ctx context.Context, resourceID string) (*models.DispatchResult, error) {
	b.calls = append(b.calls, resourceID)
	b.ctxErr = ctx.Err()
	return b.result, b.err
}

func (b *fakeBroker) WarmSession(ctx context.Context) (*models.AcquisitionAttempt, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &models.AcquisitionAttempt{ID: "att_1", Outcome: models.OutcomeReused}, nil
}

func (b *fakeBroker) ClearSession(ctx context.Context) { b.cleared++ }

func (b *fakeBroker) Status(ctx context.Context) models.SessionStatus {
	return models.SessionStatus{JarPresent: true, JarCookies: 4}
}

func postWebhook(h *WebhookHandler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.WebhookHandler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWebhook_Success(t *testing.T) {
	broker := &fakeBroker{result: &models.DispatchResult{
		Credential:        models.Credential{Token: "Bearer abc"},
		ResourceReference: models.ResourceReference{ResourceID: "ORD-1001", Reference: "sd-55"},
		Attempts:          2,
	}}
	h := NewWebhookHandler(broker, testToken, time.Minute, arbor.NewLogger())

	rec := postWebhook(h, testToken, `{"orderId":"ORD-1001"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Bearer abc", body["credential"])
	assert.Equal(t, "sd-55", body["resourceReference"])
	assert.Equal(t, float64(2), body["attempts"])
	assert.Equal(t, []string{"ORD-1001"}, broker.calls)
	assert.NoError(t, broker.ctxErr)
}

func TestWebhook_RejectsBadToken(t *testing.T) {
	broker := &fakeBroker{}
	h := NewWebhookHandler(broker, testToken, time.Minute, arbor.NewLogger())

	for _, token := range []string{"", "wrong", testToken + "x"} {
		rec := postWebhook(h, token, `{"orderId":"ORD-1001"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, "token %q", token)
	}
	assert.Empty(t, broker.calls)
}

func TestWebhook_RequiresOrderID(t *testing.T) {
	broker := &fakeBroker{}
	h := NewWebhookHandler(broker, testToken, time.Minute, arbor.NewLogger())

	for _, body := range []string{`{}`, `{"orderId":""}`, `not json`} {
		rec := postWebhook(h, testToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.Empty(t, broker.calls)
}

func TestWebhook_FailureIsStructured(t *testing.T) {
	broker := &fakeBroker{err: models.NewDispatchRejected(422, `{"message":"invalid"}`)}
	h := NewWebhookHandler(broker, testToken, time.Minute, arbor.NewLogger())

	rec := postWebhook(h, testToken, `{"orderId":"ORD-1001"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "DispatchRejected", body["kind"])
	assert.Equal(t, float64(422), body["upstreamStatus"])
	assert.Contains(t, body["error"], "DispatchRejected")
	assert.NotContains(t, rec.Body.String(), "goroutine")
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	h := NewWebhookHandler(&fakeBroker{}, testToken, time.Minute, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.WebhookHandler(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionHandler(t *testing.T) {
	broker := &fakeBroker{}
	h := NewSessionHandler(broker, nil, testToken, time.Minute, arbor.NewLogger())

	t.Run("status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set(TokenHeader, testToken)
		rec := httptest.NewRecorder()
		h.StatusHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["jar_present"])
		assert.Equal(t, float64(4), body["jar_cookies"])
		assert.NotContains(t, body, "keepalive")
	})

	t.Run("status needs token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("clear", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/session", nil)
		req.Header.Set(TokenHeader, testToken)
		rec := httptest.NewRecorder()
		h.ClearHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, broker.cleared)
	})

	t.Run("refresh", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
		req.Header.Set(TokenHeader, testToken)
		rec := httptest.NewRecorder()
		h.RefreshHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		attempt, ok := body["attempt"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "reused", attempt["outcome"])
	})
}

type fakeKeepalive struct {
	at  time.Time
	err string
}

func (k fakeKeepalive) LastRun() (*time.Time, string) { return &k.at, k.err }

func TestSessionHandler_StatusIncludesKeepalive(t *testing.T) {
	ran := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	h := NewSessionHandler(&fakeBroker{}, fakeKeepalive{at: ran, err: "CredentialCaptureFailed: no credential"}, testToken, time.Minute, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(TokenHeader, testToken)
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["jar_present"])
	keepalive, ok := body["keepalive"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T04:00:00Z", keepalive["last_run"])
	assert.Equal(t, "CredentialCaptureFailed: no credential", keepalive["last_error"])
}
