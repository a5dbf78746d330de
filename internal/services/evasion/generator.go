// Package evasion produces the per-attempt browser persona: user agent,
// viewport, locale, request headers, pacing and the page-level patches
// that hide automation markers.
package evasion

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

var defaultViewports = []models.Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 864},
}

var defaultLocales = []string{"es-ES", "es-AR"}

type webglPair struct {
	vendor   string
	renderer string
}

var webglPairs = []webglPair{
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1650 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon(TM) Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)"},
}

// Browser flags applied to every launch
var baseFlags = []string{
	"disable-blink-features=AutomationControlled",
	"disable-infobars",
	"disable-features=IsolateOrigins,site-per-process",
	"disable-site-isolation-trials",
}

// Additional flags for the advanced launch
var advancedFlags = []string{
	"disable-dev-shm-usage",
	"no-first-run",
	"no-default-browser-check",
	"password-store=basic",
	"use-mock-keychain",
	"disable-background-timer-throttling",
	"disable-renderer-backgrounding",
}

// Generator selects a persona uniformly from the configured pools.
// It is safe for concurrent use.
type Generator struct {
	config common.EvasionConfig
	mu     sync.Mutex
	rnd    *rand.Rand
}

// NewGenerator creates a generator. A zero seed draws one from the clock.
func NewGenerator(config common.EvasionConfig, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		config: config,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Generate returns a fresh profile. It never fails: empty pools fall back
// to built-in defaults.
func (g *Generator) Generate() models.EvasionProfile {
	g.mu.Lock()
	defer g.mu.Unlock()

	userAgent := pick(g.rnd, g.config.UserAgents, defaultUserAgents)
	viewport := pick(g.rnd, g.config.Viewports, defaultViewports)
	locale := pick(g.rnd, g.config.Locales, defaultLocales)
	languages := LanguagesFor(locale)

	profile := models.EvasionProfile{
		UserAgent:         userAgent,
		Platform:          platformFor(userAgent),
		Viewport:          viewport,
		DeviceScaleFactor: 1,
		Locale:            locale,
		Languages:         languages,
		Headers:           Headers(languages, g.rnd),
		Pacing:            g.config.Pacing.PacingPolicy(),
		Advanced:          g.config.Advanced,
		Timezone:          g.config.Timezone,
	}

	profile.AutomationFlags = append([]string{}, baseFlags...)
	if g.config.Advanced {
		profile.AutomationFlags = append(profile.AutomationFlags, advancedFlags...)
		profile.HardwareConcurrency = []int{4, 8, 12, 16}[g.rnd.Intn(4)]
		profile.DeviceMemory = []int{4, 8}[g.rnd.Intn(2)]
		pair := webglPairs[g.rnd.Intn(len(webglPairs))]
		profile.WebGLVendor = pair.vendor
		profile.WebGLRenderer = pair.renderer
	}

	return profile
}

func pick[T any](r *rand.Rand, pool, fallback []T) T {
	if len(pool) == 0 {
		pool = fallback
	}
	return pool[r.Intn(len(pool))]
}

func platformFor(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Windows"):
		return "Win32"
	case strings.Contains(userAgent, "Macintosh"):
		return "MacIntel"
	default:
		return "Linux x86_64"
	}
}

// LanguagesFor expands a locale into the navigator.languages list,
// e.g. es-AR -> [es-AR es en-US en].
func LanguagesFor(locale string) []string {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return []string{"en-US", "en"}
	}
	languages := []string{locale}
	if base, _, found := strings.Cut(locale, "-"); found && base != "" {
		languages = append(languages, base)
	}
	if !strings.HasPrefix(locale, "en") {
		languages = append(languages, "en-US", "en")
	}
	return languages
}

// AcceptLanguage formats languages with descending q-values,
// e.g. "es-ES,es;q=0.9,en-US;q=0.8,en;q=0.7".
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(languages[0])
	for i := 1; i < len(languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		fmt.Fprintf(&b, ",%s;q=%.1f", languages[i], q)
	}
	return b.String()
}

// Headers builds the extra request headers attached to every request of the page
func Headers(languages []string, r *rand.Rand) map[string]string {
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           AcceptLanguage(languages),
		"Upgrade-Insecure-Requests": "1",
	}
	if r != nil && r.Intn(2) == 0 {
		headers["Cache-Control"] = "max-age=0"
	}
	return headers
}
