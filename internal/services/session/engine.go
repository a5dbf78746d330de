// Package session acquires an authenticated browser session: it tries the
// cached cookie jar first, falls back to an interactive login with an
// optional second factor, and waits for the page to reveal its bearer
// credential on an outbound request.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/ternarybob/sessionbroker/internal/services/classify"
	"github.com/ternarybob/sessionbroker/internal/services/humanoid"
	"github.com/ternarybob/sessionbroker/internal/services/interceptor"
)

// Engine runs acquisition attempts. It holds no per-attempt state and may
// be shared, but attempts against one identity must not overlap.
type Engine struct {
	config   Config
	launcher interfaces.Launcher
	profiles interfaces.ProfileGenerator
	store    interfaces.SessionStorage
	codes    interfaces.CodeGenerator
	rules    classify.Rules
	filter   interceptor.Filter
	logger   arbor.ILogger
}

// NewEngine creates a session engine
func NewEngine(
	config Config,
	launcher interfaces.Launcher,
	profiles interfaces.ProfileGenerator,
	store interfaces.SessionStorage,
	codes interfaces.CodeGenerator,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		config:   config,
		launcher: launcher,
		profiles: profiles,
		store:    store,
		codes:    codes,
		rules:    classify.RulesFromConfig(config.Target),
		filter: interceptor.Filter{
			Hosts: config.Target.CredentialHosts,
			Paths: config.Target.CredentialPaths,
		},
		logger: logger,
	}
}

// WithSession runs one acquisition attempt. On success use is called with
// the live page and the captured credential before the browser is
// released. The page is closed exactly once on every path.
func (e *Engine) WithSession(
	ctx context.Context,
	number int,
	use func(ctx context.Context, page interfaces.Page, cred models.Credential) error,
) (*models.AcquisitionAttempt, error) {
	attempt := &models.AcquisitionAttempt{
		ID:        common.NewAttemptID(),
		Number:    number,
		StartedAt: time.Now(),
	}
	logger := e.logger.WithCorrelationId(attempt.ID)
	attempt.Enter(models.StateIdle)

	profile := e.profiles.Generate()
	page, err := e.launcher.Launch(ctx, profile)
	if err != nil {
		if models.KindOf(err) == "" {
			err = models.NewError(models.KindLaunch, "browser failed to start", err)
		}
		logger.Error().Err(err).Int("attempt", number).Msg("Browser launch failed")
		return finish(attempt, models.OutcomeError, err)
	}

	r := &run{
		engine:  e,
		ctx:     ctx,
		attempt: attempt,
		page:    page,
		icpt:    interceptor.New(e.filter, logger),
		pacer:   humanoid.New(profile.Pacing, 0),
		logger:  logger,
	}
	defer r.release()

	stopListening := r.icpt.Attach(page, r.onCapture)
	defer stopListening()

	logger.Info().
		Int("attempt", number).
		Str("user_agent", profile.UserAgent).
		Bool("advanced", profile.Advanced).
		Msg("Acquisition attempt started")

	cred, outcome, err := r.acquire(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("outcome", string(outcome)).Strs("trace", traceStrings(attempt.Trace)).Msg("Acquisition attempt failed")
		return finish(attempt, outcome, err)
	}
	cred.UserAgent = profile.UserAgent
	attempt.Credential = &cred

	logger.Info().
		Str("outcome", string(outcome)).
		Str("credential", common.Preview(cred.Token, 16)).
		Dur("elapsed", time.Since(attempt.StartedAt)).
		Msg("Session acquired")

	if use != nil {
		if err := use(ctx, page, cred); err != nil {
			return finish(attempt, outcome, err)
		}
	}
	return finish(attempt, outcome, nil)
}

func finish(attempt *models.AcquisitionAttempt, outcome models.Outcome, err error) (*models.AcquisitionAttempt, error) {
	attempt.Outcome = outcome
	attempt.FinishedAt = time.Now()
	if err != nil {
		attempt.Error = err.Error()
	}
	return attempt, err
}

func traceStrings(trace []models.State) []string {
	out := make([]string, len(trace))
	for i, s := range trace {
		out[i] = string(s)
	}
	return out
}

// run is the state of a single attempt
type run struct {
	engine  *Engine
	ctx     context.Context
	attempt *models.AcquisitionAttempt
	page    interfaces.Page
	icpt    *interceptor.Interceptor
	pacer   *humanoid.Pacer
	logger  arbor.ILogger

	mu      sync.Mutex
	closing bool
	saves   sync.WaitGroup
}

func (r *run) enter(s models.State) {
	r.attempt.Enter(s)
	r.logger.Debug().Str("state", string(s)).Msg("State transition")
}

// onCapture persists the jar in the background as soon as the credential
// is latched. Runs on the browser's event goroutine.
func (r *run) onCapture(cred models.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return
	}
	r.saves.Add(1)
	common.SafeGo(r.logger, "saveSessionJar", func() {
		defer r.saves.Done()
		if err := r.saveJar(r.ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to save session jar after capture")
		}
	})
}

// stopSaves refuses further capture-triggered saves and waits for the
// ones in flight
func (r *run) stopSaves() {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	r.saves.Wait()
}

// drainSaves waits for capture-triggered saves in flight. Holding mu keeps
// onCapture from adding while the group is waited on.
func (r *run) drainSaves() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves.Wait()
}

// invalidate drops the stored jar once no capture-triggered save can land
// after it. A failed attempt never leaves a jar behind.
func (r *run) invalidate(ctx context.Context, failed bool) {
	if failed {
		r.stopSaves()
	} else {
		r.drainSaves()
	}
	r.engine.store.Invalidate(ctx)
}

// release drains background saves and closes the browser
func (r *run) release() {
	r.stopSaves()
	if err := r.page.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to close browser")
	}
}

func (r *run) saveJar(ctx context.Context) error {
	cookies, err := r.page.Cookies(ctx)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return fmt.Errorf("page has no cookies to save")
	}
	return r.engine.store.Save(ctx, &models.SessionJar{Cookies: cookies, SavedAt: time.Now()})
}

// acquire drives the state machine to CredentialCaptured or a failure
func (r *run) acquire(ctx context.Context) (models.Credential, models.Outcome, error) {
	e := r.engine

	if jar, ok := e.store.Load(ctx); ok {
		r.enter(models.StateTryReuse)
		cred, reused, err := r.tryReuse(ctx, jar)
		if err != nil {
			return models.Credential{}, models.OutcomeError, err
		}
		if reused {
			return cred, models.OutcomeReused, nil
		}
	} else {
		r.logger.Debug().Msg("No cached session, signing in")
	}

	r.invalidate(ctx, false)

	r.enter(models.StateInteractiveLogin)
	if err := r.interactiveLogin(ctx); err != nil {
		r.invalidate(ctx, true)
		if models.KindOf(err) == models.KindAuthenticationFailed {
			return models.Credential{}, models.OutcomeBotDetected, err
		}
		return models.Credential{}, models.OutcomeError, err
	}

	r.enter(models.StateTwoFactorCheck)
	if err := r.secondFactor(ctx); err != nil {
		r.invalidate(ctx, true)
		return models.Credential{}, models.OutcomeError, err
	}

	r.enter(models.StateDashboardWait)
	cred, err := r.dashboardWait(ctx)
	if err != nil {
		r.invalidate(ctx, true)
		if models.KindOf(err) == models.KindCredentialCaptureFailed {
			return models.Credential{}, models.OutcomeTimeout, err
		}
		return models.Credential{}, models.OutcomeError, err
	}
	return cred, models.OutcomeInteractiveSuccess, nil
}

// tryReuse restores the jar and validates it against the dashboard
func (r *run) tryReuse(ctx context.Context, jar *models.SessionJar) (models.Credential, bool, error) {
	cfg := r.engine.config

	if err := r.page.SetCookies(ctx, jar.Cookies); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to restore cached cookies")
		r.enter(models.StateReuseFailed)
		return models.Credential{}, false, ctx.Err()
	}
	if err := r.page.Navigate(ctx, cfg.Target.DashboardURL); err != nil {
		if ctx.Err() != nil {
			return models.Credential{}, false, ctx.Err()
		}
		r.logger.Warn().Err(err).Msg("Dashboard navigation failed during reuse")
	}

	r.enter(models.StateReuseValidating)
	if err := humanoid.Sleep(ctx, cfg.SettleDelay); err != nil {
		return models.Credential{}, false, err
	}

	state := r.classify(ctx)
	r.logger.Debug().Str("page_state", string(state)).Msg("Reuse validation")
	if state == models.PageLoginRequired || state == models.PageBotChallenge {
		r.enter(models.StateReuseFailed)
		return models.Credential{}, false, nil
	}

	r.enter(models.StateReuseSucceeded)
	cred, ok, err := r.pollWithReload(ctx, cfg.ReusePolls, cfg.ReusePollsAfterLoad)
	if err != nil {
		return models.Credential{}, false, err
	}
	if !ok {
		r.logger.Info().Msg("Cached session produced no credential, falling back to login")
		r.enter(models.StateReuseFailed)
		return models.Credential{}, false, nil
	}
	r.enter(models.StateCredentialCaptured)
	return cred, true, nil
}

// dashboardWait lands on the dashboard after login and waits for the credential
func (r *run) dashboardWait(ctx context.Context) (models.Credential, error) {
	cfg := r.engine.config

	if err := r.page.Navigate(ctx, cfg.Target.DashboardURL); err != nil {
		if ctx.Err() != nil {
			return models.Credential{}, ctx.Err()
		}
		r.logger.Warn().Err(err).Msg("Dashboard navigation failed")
	}
	if err := humanoid.Sleep(ctx, cfg.SettleDelay); err != nil {
		return models.Credential{}, err
	}

	// Cookies alone are the reusable artifact, so save before any capture
	if err := r.saveJar(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to save session jar at dashboard")
	}

	cred, ok, err := r.pollWithReload(ctx, cfg.DashboardPolls, cfg.DashboardPollsReload)
	if err != nil {
		return models.Credential{}, err
	}
	if !ok {
		r.enter(models.StateCaptureTimeout)
		return models.Credential{}, models.NewError(models.KindCredentialCaptureFailed,
			fmt.Sprintf("no credential after %d+%d polls", cfg.DashboardPolls, cfg.DashboardPollsReload), nil)
	}
	r.enter(models.StateCredentialCaptured)
	return cred, nil
}

// pollWithReload polls the latch, reloads exactly once, then polls a
// second window
func (r *run) pollWithReload(ctx context.Context, first, second int) (models.Credential, bool, error) {
	cred, ok, err := r.poll(ctx, first)
	if ok || err != nil {
		return cred, ok, err
	}

	r.logger.Debug().Int("polls", first).Msg("No credential yet, reloading")
	if err := r.page.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return models.Credential{}, false, ctx.Err()
		}
		r.logger.Warn().Err(err).Msg("Reload failed")
	}
	if err := humanoid.Sleep(ctx, r.engine.config.SettleDelay); err != nil {
		return models.Credential{}, false, err
	}
	return r.poll(ctx, second)
}

// poll checks the latch up to n times, one interval apart
func (r *run) poll(ctx context.Context, n int) (models.Credential, bool, error) {
	latch := r.icpt.Latch()
	for i := 0; i < n; i++ {
		if cred, ok := latch.Get(); ok {
			return cred, true, nil
		}
		if err := humanoid.Sleep(ctx, r.engine.config.PollInterval); err != nil {
			return models.Credential{}, false, err
		}
	}
	cred, ok := latch.Get()
	return cred, ok, nil
}

func (r *run) classify(ctx context.Context) models.PageState {
	url, err := r.page.CurrentURL(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Could not read page location")
	}
	html, err := r.page.HTML(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Could not read page document")
	}
	return classify.Classify(classify.Observation{
		URL:     url,
		HTML:    html,
		Latched: r.icpt.Latch().Latched(),
	}, r.engine.rules)
}
