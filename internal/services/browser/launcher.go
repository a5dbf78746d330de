package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/ternarybob/sessionbroker/internal/services/evasion"
)

// Launcher starts one isolated Chrome instance per acquisition attempt
type Launcher struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

// NewLauncher creates a chromedp launcher
func NewLauncher(config common.BrowserConfig, logger arbor.ILogger) *Launcher {
	return &Launcher{
		config: config,
		logger: logger,
	}
}

// Launch starts the browser, verifies it responds and applies the profile.
// Any failure tears the instance down and returns a LaunchError.
func (l *Launcher) Launch(ctx context.Context, profile models.EvasionProfile) (interfaces.Page, error) {
	startTime := time.Now()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		context.Background(),
		l.allocatorOptions(profile)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	p := newPage(browserCtx, browserCancel, allocatorCancel, l.config, l.logger)

	launchTimeout := common.ParseDuration(l.config.LaunchTimeout, 30*time.Second)

	// Run startup test
	if err := p.run(ctx, launchTimeout, chromedp.Navigate("about:blank")); err != nil {
		p.Close()
		return nil, models.NewError(models.KindLaunch, "browser failed startup test", err)
	}

	if err := p.run(ctx, launchTimeout, applyProfile(profile, l.logger)); err != nil {
		p.Close()
		return nil, models.NewError(models.KindLaunch, "failed to apply evasion profile", err)
	}

	l.logger.Debug().
		Str("user_agent", profile.UserAgent).
		Int("viewport_width", profile.Viewport.Width).
		Int("viewport_height", profile.Viewport.Height).
		Str("locale", profile.Locale).
		Bool("advanced", profile.Advanced).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser launched")

	return p, nil
}

func (l *Launcher) allocatorOptions(profile models.EvasionProfile) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", profile.Locale),
		chromedp.WindowSize(profile.Viewport.Width, profile.Viewport.Height),
		chromedp.UserAgent(profile.UserAgent),
	)
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}
	for _, flag := range profileFlags(profile.AutomationFlags) {
		opts = append(opts, chromedp.Flag(flag.name, flag.value))
	}
	return opts
}

// Comma-separated switches that chromedp's defaults already set. A later
// flag of the same name replaces the earlier one, so these are merged.
var listFlags = map[string]string{
	"disable-features": "site-per-process,Translate,BlinkGenPropertyTrees",
}

type launchFlag struct {
	name  string
	value interface{}
}

// profileFlags parses name[=value] switches, folding list switches into
// the allocator defaults
func profileFlags(flags []string) []launchFlag {
	var out []launchFlag
	lists := make(map[string]int)
	for _, flag := range flags {
		name, value, hasValue := strings.Cut(flag, "=")
		if !hasValue {
			out = append(out, launchFlag{name: name, value: true})
			continue
		}
		if base, ok := listFlags[name]; ok {
			if i, seen := lists[name]; seen {
				out[i].value = joinList(out[i].value.(string), value)
				continue
			}
			value = joinList(base, value)
			lists[name] = len(out)
		}
		out = append(out, launchFlag{name: name, value: value})
	}
	return out
}

func joinList(lists ...string) string {
	seen := make(map[string]bool)
	var items []string
	for _, list := range lists {
		for _, item := range strings.Split(list, ",") {
			item = strings.TrimSpace(item)
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			items = append(items, item)
		}
	}
	return strings.Join(items, ",")
}

// applyProfile configures headers, emulation and the page patches for the tab
func applyProfile(profile models.EvasionProfile, logger arbor.ILogger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("failed to enable network domain: %w", err)
		}

		if len(profile.Headers) > 0 {
			headers := network.Headers{}
			for k, v := range profile.Headers {
				headers[k] = v
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("failed to set extra headers: %w", err)
			}
		}

		if err := emulation.SetUserAgentOverride(profile.UserAgent).
			WithPlatform(profile.Platform).
			WithAcceptLanguage(evasion.AcceptLanguage(profile.Languages)).
			Do(ctx); err != nil {
			return fmt.Errorf("failed to set user agent override: %w", err)
		}

		if profile.Viewport.Width > 0 && profile.Viewport.Height > 0 {
			scale := profile.DeviceScaleFactor
			if scale <= 0 {
				scale = 1
			}
			if err := emulation.SetDeviceMetricsOverride(int64(profile.Viewport.Width), int64(profile.Viewport.Height), scale, false).Do(ctx); err != nil {
				return fmt.Errorf("failed to set device metrics: %w", err)
			}
		}

		if profile.Timezone != "" {
			if err := emulation.SetTimezoneOverride(profile.Timezone).Do(ctx); err != nil {
				logger.Warn().Err(err).Str("timezone", profile.Timezone).Msg("Timezone override rejected, continuing")
			}
		}

		script, err := evasion.Script(profile)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("failed to register evasion script: %w", err)
		}
		return nil
	})
}
