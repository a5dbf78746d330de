package models

import "time"

// State is a node of the login state machine
type State string

const (
	StateIdle               State = "idle"
	StateTryReuse           State = "try_reuse"
	StateReuseValidating    State = "reuse_validating"
	StateReuseSucceeded     State = "reuse_succeeded"
	StateReuseFailed        State = "reuse_failed"
	StateInteractiveLogin   State = "interactive_login"
	StateTwoFactorCheck     State = "two_factor_check"
	StateTwoFactorRequired  State = "two_factor_required"
	StateTwoFactorSubmit    State = "two_factor_submit"
	StateDashboardWait      State = "dashboard_wait"
	StateCredentialCaptured State = "credential_captured"
	StateCaptureTimeout     State = "capture_timeout"
)

// Outcome is the terminal result of an acquisition attempt
type Outcome string

const (
	OutcomeReused             Outcome = "reused"
	OutcomeInteractiveSuccess Outcome = "interactive-success"
	OutcomeBotDetected        Outcome = "bot-detected"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeError              Outcome = "error"
)

// PageState is the classifier's verdict on the current page
type PageState string

const (
	PageUnknown       PageState = "unknown"
	PageAuthenticated PageState = "authenticated"
	PageLoginRequired PageState = "login_required"
	PageBotChallenge  PageState = "bot_challenge"
)

// AcquisitionAttempt records one pass through the login state machine
type AcquisitionAttempt struct {
	ID         string      `json:"id"`
	Number     int         `json:"number"`
	Outcome    Outcome     `json:"outcome"`
	Credential *Credential `json:"-"`
	Trace      []State     `json:"trace"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Enter appends a state to the attempt trace
func (a *AcquisitionAttempt) Enter(s State) {
	a.Trace = append(a.Trace, s)
}

// Visited reports how many times the attempt passed through s
func (a *AcquisitionAttempt) Visited(s State) int {
	n := 0
	for _, t := range a.Trace {
		if t == s {
			n++
		}
	}
	return n
}

// Duration is the wall time of the attempt, zero while it is running
func (a *AcquisitionAttempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// ResourceReference is the internal id the remote application assigns to
// a business resource, read out of the detail page URL.
type ResourceReference struct {
	ResourceID string `json:"resource_id"`
	Reference  string `json:"reference"`
}

// DispatchResult is returned to callers of the acquire-and-dispatch pipeline
type DispatchResult struct {
	Credential        Credential        `json:"credential"`
	ResourceReference ResourceReference `json:"resource_reference"`
	Attempts          int               `json:"attempts"`
}

// SessionStatus summarizes the broker's session for the status endpoint
type SessionStatus struct {
	JarPresent  bool                `json:"jar_present"`
	JarCookies  int                 `json:"jar_cookies"`
	JarSavedAt  *time.Time          `json:"jar_saved_at,omitempty"`
	LastAttempt *AcquisitionAttempt `json:"last_attempt,omitempty"`
	Keepalive   *KeepaliveStatus    `json:"keepalive,omitempty"`
}

// KeepaliveStatus is the outcome of the last scheduled session warm-up
type KeepaliveStatus struct {
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}
