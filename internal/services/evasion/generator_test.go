package evasion

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

func TestGenerate_DrawsFromPools(t *testing.T) {
	cfg := common.NewDefaultConfig().Evasion
	gen := NewGenerator(cfg, 42)

	seenViewports := map[models.Viewport]bool{}
	for i := 0; i < 200; i++ {
		p := gen.Generate()
		assert.Contains(t, cfg.Viewports, p.Viewport)
		assert.Contains(t, cfg.Locales, p.Locale)
		assert.NotEmpty(t, p.UserAgent)
		assert.Equal(t, p.Locale, p.Languages[0])
		assert.True(t, strings.HasPrefix(p.Headers["Accept-Language"], p.Locale))
		seenViewports[p.Viewport] = true
	}
	assert.Len(t, seenViewports, len(cfg.Viewports), "every viewport should be drawn eventually")
}

func TestGenerate_EmptyPoolsFallBack(t *testing.T) {
	gen := NewGenerator(common.EvasionConfig{}, 7)
	p := gen.Generate()

	assert.NotEmpty(t, p.UserAgent)
	assert.NotZero(t, p.Viewport.Width)
	assert.NotEmpty(t, p.Locale)
	assert.False(t, p.Advanced)
	assert.Zero(t, p.HardwareConcurrency)
}

func TestGenerate_AdvancedAddsFlagsAndHardware(t *testing.T) {
	basic := NewGenerator(common.EvasionConfig{Advanced: false}, 1).Generate()
	advanced := NewGenerator(common.EvasionConfig{Advanced: true}, 1).Generate()

	assert.Greater(t, len(advanced.AutomationFlags), len(basic.AutomationFlags))
	assert.NotZero(t, advanced.HardwareConcurrency)
	assert.NotEmpty(t, advanced.WebGLRenderer)
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "es-ES,es;q=0.9,en-US;q=0.8,en;q=0.7", AcceptLanguage(LanguagesFor("es-ES")))
	assert.Equal(t, "en-GB,en;q=0.9", AcceptLanguage(LanguagesFor("en_GB")))
	assert.Equal(t, "", AcceptLanguage(nil))
}

func TestHeaders(t *testing.T) {
	h := Headers([]string{"es-AR", "es"}, rand.New(rand.NewSource(3)))
	assert.Equal(t, "es-AR,es;q=0.9", h["Accept-Language"])
	assert.Equal(t, "1", h["Upgrade-Insecure-Requests"])
	assert.NotContains(t, h, "Sec-Fetch-Mode")
}

func TestScript_DepthFollowsProfile(t *testing.T) {
	basic, err := Script(models.EvasionProfile{Languages: []string{"es-AR"}})
	require.NoError(t, err)
	assert.Contains(t, basic, "const SESSION_PERSONA = {")
	assert.Contains(t, basic, "webdriver")
	assert.NotContains(t, basic, "WebGLRenderingContext")

	advanced, err := Script(models.EvasionProfile{Advanced: true, WebGLVendor: "Google Inc. (Intel)"})
	require.NoError(t, err)
	assert.Contains(t, advanced, "WebGLRenderingContext")
	assert.Contains(t, advanced, `"webglVendor":"Google Inc. (Intel)"`)
}
