package models

import (
	"time"
)

// Cookie is a single browser cookie as persisted in a SessionJar.
// Field names follow the browser's cookie export so a jar can be handed
// back to the driver verbatim.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // seconds since epoch, <= 0 for session cookies
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite,omitempty"`
}

// SessionJar is the full cookie set of an authenticated browser context.
// Whether a jar is still valid can only be learned by using it.
type SessionJar struct {
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"saved_at"`
}

// Empty reports whether the jar carries no cookies
func (j *SessionJar) Empty() bool {
	return j == nil || len(j.Cookies) == 0
}

// Identity is the account the broker authenticates as. It is read once at
// startup and never mutated afterwards.
type Identity struct {
	Email      string `json:"email"`
	Password   string `json:"-"`
	TOTPSecret string `json:"-"`
}

// Credential is a bearer value observed on an outbound request of an
// authenticated page. At most one exists per acquisition attempt.
type Credential struct {
	Token      string    `json:"token"`
	CapturedAt time.Time `json:"captured_at"`
	SourceURL  string    `json:"source_url"`
	UserAgent  string    `json:"user_agent,omitempty"` // persona of the browser that captured it
}
