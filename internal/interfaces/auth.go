package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sessionbroker/internal/models"
)

// SessionStorage persists the single cookie jar of the broker's identity.
// Load never errors: unreadable or corrupt data is reported as absent.
// Invalidate is best-effort and swallows I/O failures.
type SessionStorage interface {
	Load(ctx context.Context) (*models.SessionJar, bool)
	Save(ctx context.Context, jar *models.SessionJar) error
	Invalidate(ctx context.Context)
	Close() error
}

// CodeGenerator derives the current one-time second factor code
type CodeGenerator interface {
	Generate(secret string) (string, error)
}

// SessionEngine runs one acquisition attempt and hands the live page and
// credential to use before the browser is released.
type SessionEngine interface {
	WithSession(ctx context.Context, number int, use func(ctx context.Context, page Page, cred models.Credential) error) (*models.AcquisitionAttempt, error)
}

// ResourceLocator resolves a business id to the remote internal reference
type ResourceLocator interface {
	Locate(ctx context.Context, page Page, resourceID string) (models.ResourceReference, error)
}

// Dispatcher performs the authenticated dispatch call
type Dispatcher interface {
	Dispatch(ctx context.Context, cred models.Credential, ref models.ResourceReference) error
}

// Broker is the outward-facing acquire-and-dispatch service
type Broker interface {
	AcquireAndDispatch(ctx context.Context, resourceID string) (*models.DispatchResult, error)
	WarmSession(ctx context.Context) (*models.AcquisitionAttempt, error)
	ClearSession(ctx context.Context)
	Status(ctx context.Context) models.SessionStatus
}

// KeepaliveReporter reports the background keep-alive's most recent run
type KeepaliveReporter interface {
	LastRun() (*time.Time, string)
}
