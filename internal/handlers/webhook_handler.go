package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

const maxWebhookBody = 64 << 10

// WebhookRequest is the body of POST /webhook
type WebhookRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
}

// WebhookResponse is returned when the dispatch succeeds
type WebhookResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	Credential        string `json:"credential"`
	ResourceReference string `json:"resourceReference"`
	Attempts          int    `json:"attempts"`
}

// WebhookHandler runs the acquire-and-dispatch pipeline for external callers
type WebhookHandler struct {
	broker   interfaces.Broker
	token    string
	timeout  time.Duration
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewWebhookHandler creates a webhook handler. Pipelines outlive the
// caller's connection and are bounded by timeout instead.
func NewWebhookHandler(broker interfaces.Broker, token string, timeout time.Duration, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		broker:   broker,
		token:    token,
		timeout:  timeout,
		validate: validator.New(),
		logger:   logger,
	}
}

// WebhookHandler handles POST /webhook
func (h *WebhookHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	if !RequireToken(w, r, h.token) {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("Webhook rejected: invalid token")
		return
	}

	var req WebhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	h.logger.Info().Str("order_id", req.OrderID).Msg("Webhook received")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	result, err := h.broker.AcquireAndDispatch(ctx, req.OrderID)
	if err != nil {
		h.logger.Error().Err(err).Str("order_id", req.OrderID).Msg("Webhook pipeline failed")
		WriteFailure(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, WebhookResponse{
		Status:            "success",
		Message:           fmt.Sprintf("Completed in attempt %d", result.Attempts),
		Credential:        result.Credential.Token,
		ResourceReference: result.ResourceReference.Reference,
		Attempts:          result.Attempts,
	})
}

// WriteFailure writes a pipeline error as a structured 500 response.
// Only the error message crosses the boundary.
func WriteFailure(w http.ResponseWriter, err error) error {
	body := map[string]interface{}{
		"status": "error",
		"error":  err.Error(),
	}
	if kind := models.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	var acqErr *models.AcquisitionError
	if errors.As(err, &acqErr) && acqErr.Kind == models.KindDispatchRejected && acqErr.Status != 0 {
		body["upstreamStatus"] = acqErr.Status
		body["upstreamBody"] = acqErr.Body
	}
	return WriteJSON(w, http.StatusInternalServerError, body)
}
