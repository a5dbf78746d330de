package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Type = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "jar.json")
	cfg.Identity = common.IdentityConfig{
		Email:      "ops@example.com",
		Password:   "pw",
		TOTPSecret: "JBSWY3DPEHPK3PXP",
		APIToken:   "token",
	}
	return cfg
}

func TestNew_WiresPipeline(t *testing.T) {
	app, err := New(testConfig(t), arbor.NewLogger())
	require.NoError(t, err)

	assert.NotNil(t, app.Broker)
	assert.NotNil(t, app.WebhookHandler)
	assert.NotNil(t, app.SessionHandler)
	assert.NotNil(t, app.APIHandler)

	status := app.Broker.Status(context.Background())
	assert.False(t, status.JarPresent)

	require.NoError(t, app.StartBackground())
	assert.NoError(t, app.Close())
}

func TestNew_RejectsPatternWithoutGroup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.ReferencePattern = `shipping-details/\w+`

	_, err := New(cfg, arbor.NewLogger())
	assert.Error(t, err)
}

func TestStartBackground_RejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.KeepaliveSchedule = "not a cron"

	app, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer app.Close()

	assert.Error(t, app.StartBackground())
}
