package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_Tunables(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Orchestrator.MaxAttempts)
	assert.Equal(t, 20, cfg.Acquisition.ReusePolls)
	assert.Equal(t, 10, cfg.Acquisition.ReusePollsAfterLoad)
	assert.Equal(t, 30, cfg.Acquisition.DashboardPolls)
	assert.Equal(t, 10, cfg.Acquisition.DashboardPollsReload)
	assert.Len(t, cfg.Evasion.Viewports, 4)
	assert.Equal(t, "badger", cfg.Storage.Type)
}

func TestLoadFromFiles_MergesInOrderThenEnv(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 8080

[orchestrator]
max_attempts = 5
delay = "500ms"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[orchestrator]
max_attempts = 2

[storage]
type = "file"
`), 0644))

	t.Setenv("USER_EMAIL", "ops@example.com")
	t.Setenv("SESSIONBROKER_SERVER_PORT", "9090")
	t.Setenv("SIMPLE_MODE", "true")

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "env wins over files")
	assert.Equal(t, 2, cfg.Orchestrator.MaxAttempts, "later file wins")
	assert.Equal(t, "500ms", cfg.Orchestrator.Delay)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "ops@example.com", cfg.Identity.Email)
	assert.False(t, cfg.Evasion.Advanced)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "USER_EMAIL")
	assert.Contains(t, err.Error(), "API_TOKEN")

	cfg.Identity = IdentityConfig{Email: "a@b.c", Password: "p", TOTPSecret: "JBSWY3DPEHPK3PXP", APIToken: "t"}
	assert.NoError(t, cfg.Validate())

	cfg.Scheduler.KeepaliveSchedule = "not a cron"
	assert.Error(t, cfg.Validate())

	cfg.Scheduler.KeepaliveSchedule = "*/20 * * * *"
	cfg.Storage.Type = "redis"
	assert.Error(t, cfg.Validate())
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDuration("2s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
}

func TestPacingPolicy_SwapsInvertedRanges(t *testing.T) {
	p := PacingConfig{KeystrokeMs: [2]int{140, 60}}.PacingPolicy()
	assert.Equal(t, 60*time.Millisecond, p.Keystroke.Min)
	assert.Equal(t, 140*time.Millisecond, p.Keystroke.Max)
}
