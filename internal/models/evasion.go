package models

import (
	"math/rand"
	"time"
)

// Viewport is a browser window size in CSS pixels
type Viewport struct {
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

// DelayRange is an inclusive range a random pause is drawn from
type DelayRange struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Pick draws a uniform duration from the range using r
func (d DelayRange) Pick(r *rand.Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(r.Int63n(int64(d.Max-d.Min)+1))
}

// PacingPolicy holds the delay ranges used to simulate a human operator
type PacingPolicy struct {
	Keystroke     DelayRange `json:"keystroke"`
	BetweenFields DelayRange `json:"between_fields"`
	BeforeSubmit  DelayRange `json:"before_submit"`
	Reading       DelayRange `json:"reading"`
	PointerStep   DelayRange `json:"pointer_step"`
	Remediation   DelayRange `json:"remediation"`
	TypoChance    float64    `json:"typo_chance"`
}

// EvasionProfile is the per-attempt browser persona. Profiles are
// generated fresh for each attempt and never persisted.
type EvasionProfile struct {
	UserAgent           string            `json:"userAgent"`
	Platform            string            `json:"platform"`
	Viewport            Viewport          `json:"viewport"`
	DeviceScaleFactor   float64           `json:"deviceScaleFactor"`
	Locale              string            `json:"locale"`
	Languages           []string          `json:"languages"`
	Headers             map[string]string `json:"-"`
	Pacing              PacingPolicy      `json:"-"`
	AutomationFlags     []string          `json:"-"`
	Advanced            bool              `json:"advanced"`
	HardwareConcurrency int               `json:"hardwareConcurrency"`
	DeviceMemory        int               `json:"deviceMemory"`
	WebGLVendor         string            `json:"webglVendor"`
	WebGLRenderer       string            `json:"webglRenderer"`
	Timezone            string            `json:"timezone"`
}
