package dispatch

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

const maxBodyPreview = 512

// Request is the dispatch payload
type Request struct {
	CreateFile         struct{} `json:"createFile"`
	ContentDeclaration bool     `json:"contentDeclaration"`
	Label              bool     `json:"label"`
	OrdersIDs          []string `json:"ordersIds"`
}

// Client posts dispatches with a captured credential
type Client struct {
	http               *resty.Client
	url                string
	label              bool
	contentDeclaration bool
	logger             arbor.ILogger
}

// NewClient creates a dispatch client for the target's endpoint. userAgent
// is used only for credentials that carry none.
func NewClient(target common.TargetConfig, userAgent string, timeout time.Duration, logger arbor.ILogger) *Client {
	http := resty.New()
	http.SetTimeout(timeout)
	http.SetHeader("content-type", "application/json")
	http.SetHeader("accept", "application/json, text/plain, */*")
	if userAgent != "" {
		http.SetHeader("user-agent", userAgent)
	}

	return &Client{
		http:               http,
		url:                target.DispatchURL,
		label:              target.DispatchLabel,
		contentDeclaration: target.ContentDeclaration,
		logger:             logger,
	}
}

// Dispatch posts the reference. Any non-2xx answer is a DispatchRejected
// error carrying the status and body.
func (c *Client) Dispatch(ctx context.Context, cred models.Credential, ref models.ResourceReference) error {
	body := Request{
		ContentDeclaration: c.contentDeclaration,
		Label:              c.label,
		OrdersIDs:          []string{ref.Reference},
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", cred.Token).
		SetBody(body)
	// Present the same browser the token was issued to
	if cred.UserAgent != "" {
		req.SetHeader("user-agent", cred.UserAgent)
	}

	resp, err := req.Post(c.url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Transport failures carry status 0
		return &models.AcquisitionError{
			Kind:    models.KindDispatchRejected,
			Message: "dispatch request failed",
			Err:     err,
		}
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		text := resp.String()
		c.logger.Warn().
			Int("status", resp.StatusCode()).
			Str("body", truncate(text, maxBodyPreview)).
			Str("reference", ref.Reference).
			Msg("Dispatch rejected")
		return models.NewDispatchRejected(resp.StatusCode(), text)
	}

	c.logger.Info().
		Str("resource_id", ref.ResourceID).
		Str("reference", ref.Reference).
		Int("status", resp.StatusCode()).
		Dur("elapsed", resp.Time()).
		Msg("Dispatch accepted")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
