package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sessionbroker/internal/models"
)

// RequestEvent is an outbound request observed on a page before it is sent
type RequestEvent struct {
	URL     string
	Method  string
	Headers map[string]string
}

// RequestSource publishes outbound requests of a page. The returned func
// detaches the handler.
type RequestSource interface {
	OnRequest(fn func(RequestEvent)) (cancel func())
}

// Keyboard is the minimum surface needed to type into an element.
// Both pages and frames satisfy it.
type Keyboard interface {
	SendKeys(ctx context.Context, selector, text string) error
}

// Page is a live, scriptable browser tab with its own cookie context
type Page interface {
	RequestSource
	Keyboard

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// Exists probes for selector without waiting
	Exists(ctx context.Context, selector string) bool
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	// SubmitAndWait clicks selector and waits for the resulting navigation
	SubmitAndWait(ctx context.Context, selector string, timeout time.Duration) error
	Clear(ctx context.Context, selector string) error
	WaitURLChange(ctx context.Context, from string, timeout time.Duration) (string, error)

	ElementCenter(ctx context.Context, selector string) (x, y float64, err error)
	MoveMouse(ctx context.Context, x, y float64) error
	Scroll(ctx context.Context, dy int) error

	// Frame resolves an iframe by selector and scopes queries to its document
	Frame(ctx context.Context, selector string, timeout time.Duration) (Frame, error)

	// Close releases the browser. Calls after the first are no-ops.
	Close() error
}

// Frame is a query scope bound to an embedded document
type Frame interface {
	Keyboard

	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	// WaitContains waits until an element matching selector contains text
	WaitContains(ctx context.Context, selector, text string, timeout time.Duration) error
	// ClickContaining clicks the first element matching selector whose text contains text
	ClickContaining(ctx context.Context, selector, text string) error
}

// Launcher starts a browser configured for the given profile
type Launcher interface {
	Launch(ctx context.Context, profile models.EvasionProfile) (Page, error)
}

// ProfileGenerator produces a fresh evasion profile per attempt
type ProfileGenerator interface {
	Generate() models.EvasionProfile
}
