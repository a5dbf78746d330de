package session

import (
	"time"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// Config is the immutable engine configuration, built once at startup
type Config struct {
	Identity models.Identity
	Target   common.TargetConfig

	PollInterval   time.Duration
	SettleDelay    time.Duration
	TwoFactorProbe time.Duration
	SubmitTimeout  time.Duration

	ReusePolls           int
	ReusePollsAfterLoad  int
	DashboardPolls       int
	DashboardPollsReload int

	WarmUpHome bool
}

// ConfigFrom extracts the engine configuration from the application config
func ConfigFrom(c *common.Config) Config {
	return Config{
		Identity:             c.IdentityModel(),
		Target:               c.Target,
		PollInterval:         common.ParseDuration(c.Acquisition.PollInterval, time.Second),
		SettleDelay:          common.ParseDuration(c.Acquisition.SettleDelay, 3*time.Second),
		TwoFactorProbe:       common.ParseDuration(c.Acquisition.TwoFactorProbe, 8*time.Second),
		SubmitTimeout:        common.ParseDuration(c.Browser.SubmitTimeout, 30*time.Second),
		ReusePolls:           c.Acquisition.ReusePolls,
		ReusePollsAfterLoad:  c.Acquisition.ReusePollsAfterLoad,
		DashboardPolls:       c.Acquisition.DashboardPolls,
		DashboardPollsReload: c.Acquisition.DashboardPollsReload,
		WarmUpHome:           c.Acquisition.WarmUpHome,
	}
}
