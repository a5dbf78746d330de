package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/handlers"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/services/browser"
	"github.com/ternarybob/sessionbroker/internal/services/dispatch"
	"github.com/ternarybob/sessionbroker/internal/services/evasion"
	"github.com/ternarybob/sessionbroker/internal/services/orchestrator"
	"github.com/ternarybob/sessionbroker/internal/services/scheduler"
	"github.com/ternarybob/sessionbroker/internal/services/session"
	"github.com/ternarybob/sessionbroker/internal/services/totp"
	"github.com/ternarybob/sessionbroker/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	SessionStore interfaces.SessionStorage

	// Acquisition pipeline
	Launcher *browser.Launcher
	Profiles *evasion.Generator
	Engine   *session.Engine
	Locator  *dispatch.Locator
	Client   *dispatch.Client
	Broker   *orchestrator.Service

	// Background keep-alive
	Scheduler *scheduler.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	WebhookHandler *handlers.WebhookHandler
	SessionHandler *handlers.SessionHandler
}

// New initializes the application with all dependencies
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: config,
		Logger: logger,
	}

	// Initialize storage
	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("storage_type", config.Storage.Type).
		Str("identity", config.Identity.Email).
		Int("max_attempts", config.Orchestrator.MaxAttempts).
		Bool("headless", config.Browser.Headless).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the session jar store
func (a *App) initStorage() error {
	store, err := storage.NewSessionStorage(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.SessionStore = store

	a.Logger.Debug().Str("type", a.Config.Storage.Type).Msg("Session storage initialized")
	return nil
}

// initServices wires the acquisition pipeline bottom-up
func (a *App) initServices() error {
	cfg := a.Config

	a.Launcher = browser.NewLauncher(cfg.Browser, a.Logger)
	a.Profiles = evasion.NewGenerator(cfg.Evasion, 0)

	a.Engine = session.NewEngine(
		session.ConfigFrom(cfg),
		a.Launcher,
		a.Profiles,
		a.SessionStore,
		totp.NewGenerator(),
		a.Logger,
	)

	locateTimeout := common.ParseDuration(cfg.Acquisition.LocateTimeout, 30*time.Second)
	locator, err := dispatch.NewLocator(cfg.Target, locateTimeout, cfg.Evasion.Pacing.PacingPolicy(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create resource locator: %w", err)
	}
	a.Locator = locator

	// Fallback user agent for credentials that do not name their browser
	a.Client = dispatch.NewClient(cfg.Target, a.Profiles.Generate().UserAgent, locateTimeout, a.Logger)

	policy := orchestrator.RetryPolicy{
		MaxAttempts: cfg.Orchestrator.MaxAttempts,
		Delay:       common.ParseDuration(cfg.Orchestrator.Delay, 2*time.Second),
	}
	a.Broker = orchestrator.NewService(a.Engine, a.Locator, a.Client, a.SessionStore, policy, a.Logger)

	pipelineTimeout := common.ParseDuration(cfg.Server.PipelineTimeout, 10*time.Minute)
	a.Scheduler = scheduler.NewService(a.Broker, pipelineTimeout, a.Logger)

	a.Logger.Debug().
		Str("dispatch_url", cfg.Target.DispatchURL).
		Str("keepalive", cfg.Scheduler.KeepaliveSchedule).
		Msg("Services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	token := a.Config.Identity.APIToken
	timeout := common.ParseDuration(a.Config.Server.PipelineTimeout, 10*time.Minute)

	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.WebhookHandler = handlers.NewWebhookHandler(a.Broker, token, timeout, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.Broker, a.Scheduler, token, timeout, a.Logger)
}

// StartBackground starts the keep-alive scheduler. One-shot commands
// never call it.
func (a *App) StartBackground() error {
	if err := a.Scheduler.Start(a.Config.Scheduler.KeepaliveSchedule); err != nil {
		return fmt.Errorf("failed to start keep-alive scheduler: %w", err)
	}
	return nil
}

// Close stops background work and releases storage
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.SessionStore != nil {
		if err := a.SessionStore.Close(); err != nil {
			return fmt.Errorf("failed to close session storage: %w", err)
		}
		a.Logger.Info().Msg("Session storage closed")
	}

	return nil
}
