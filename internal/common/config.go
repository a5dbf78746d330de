package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/sessionbroker/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Logging      LoggingConfig      `toml:"logging"`
	Identity     IdentityConfig     `toml:"identity"`
	Target       TargetConfig       `toml:"target"`
	Browser      BrowserConfig      `toml:"browser"`
	Evasion      EvasionConfig      `toml:"evasion"`
	Acquisition  AcquisitionConfig  `toml:"acquisition"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
}

type ServerConfig struct {
	Port            int     `toml:"port"`
	Host            string  `toml:"host"`
	RateLimit       float64 `toml:"rate_limit"`       // Requests per second on mutating routes, 0 disables
	RateBurst       int     `toml:"rate_burst"`       // Token bucket burst size
	ShutdownTimeout string  `toml:"shutdown_timeout"` // e.g. "10s"
	PipelineTimeout string  `toml:"pipeline_timeout"` // Upper bound for one webhook's acquire-and-dispatch
}

type StorageConfig struct {
	Type   string       `toml:"type"` // "badger" or "file"
	Badger BadgerConfig `toml:"badger"`
	File   FileConfig   `toml:"file"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// FileConfig locates the plain JSON cookie file
type FileConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// IdentityConfig is the account the broker signs in as. Usually supplied
// through the environment rather than a file.
type IdentityConfig struct {
	Email      string `toml:"email"`
	Password   string `toml:"password"`
	TOTPSecret string `toml:"totp_secret"`
	APIToken   string `toml:"api_token"` // Shared secret expected in the x-token header
}

// TargetConfig describes the remote application: where to go, what the
// pages look like, and which traffic carries the credential.
type TargetConfig struct {
	HomeURL            string          `toml:"home_url"`
	LoginURL           string          `toml:"login_url"`
	DashboardURL       string          `toml:"dashboard_url"`
	LoginURLPatterns   []string        `toml:"login_url_patterns"`  // URL substrings that mean "not signed in"
	AuthMarkers        []string        `toml:"auth_markers"`        // Page text that means "signed in"
	LoginPromptMarker  string          `toml:"login_prompt_marker"` // Page text shown only to anonymous visitors
	CredentialHosts    []string        `toml:"credential_hosts"`    // Hosts whose Authorization header is latched
	CredentialPaths    []string        `toml:"credential_paths"`    // Optional URL substrings, any match qualifies
	ReferencePattern   string          `toml:"reference_pattern"`   // Regex with one capture group over the detail URL
	DispatchURL        string          `toml:"dispatch_url"`
	DispatchLabel      bool            `toml:"dispatch_label"`
	ContentDeclaration bool            `toml:"content_declaration"`
	Selectors          SelectorsConfig `toml:"selectors"`
}

// SelectorsConfig holds CSS selectors for the remote pages
type SelectorsConfig struct {
	Email            string   `toml:"email"`
	Password         string   `toml:"password"`
	Submit           string   `toml:"submit"`
	TwoFactorInputs  []string `toml:"two_factor_inputs"` // Probed in order
	TwoFactorSubmit  string   `toml:"two_factor_submit"`
	Challenge        []string `toml:"challenge"`          // Presence means a bot challenge is shown
	ChallengeFrame   string   `toml:"challenge_frame"`    // Iframe hosting the checkbox widget
	ChallengeBoxes   []string `toml:"challenge_checkbox"` // Checkbox candidates inside the frame
	AppFrame         string   `toml:"app_frame"`
	Search           string   `toml:"search"`
	ResultsContainer string   `toml:"results_container"`
	ResultLink       string   `toml:"result_link"`
}

// BrowserConfig controls the chromedp allocator
type BrowserConfig struct {
	Headless       bool   `toml:"headless"`
	NoSandbox      bool   `toml:"no_sandbox"`
	ExecPath       string `toml:"exec_path"`       // Empty uses chromedp's lookup
	LaunchTimeout  string `toml:"launch_timeout"`  // Startup probe budget
	NavTimeout     string `toml:"nav_timeout"`     // Per navigation budget
	SubmitTimeout  string `toml:"submit_timeout"`  // Wait for navigation after a form submit
	ElementTimeout string `toml:"element_timeout"` // Default selector wait
}

// EvasionConfig configures the persona pools and pacing ranges
type EvasionConfig struct {
	Advanced   bool              `toml:"advanced"`
	Viewports  []models.Viewport `toml:"viewports"`
	Locales    []string          `toml:"locales"`
	UserAgents []string          `toml:"user_agents"`
	Timezone   string            `toml:"timezone"`
	Pacing     PacingConfig      `toml:"pacing"`
}

// PacingConfig ranges are milliseconds, [min, max]
type PacingConfig struct {
	KeystrokeMs     [2]int  `toml:"keystroke_ms"`
	BetweenFieldsMs [2]int  `toml:"between_fields_ms"`
	BeforeSubmitMs  [2]int  `toml:"before_submit_ms"`
	ReadingMs       [2]int  `toml:"reading_ms"`
	PointerStepMs   [2]int  `toml:"pointer_step_ms"`
	RemediationMs   [2]int  `toml:"remediation_ms"`
	TypoChance      float64 `toml:"typo_chance"`
}

// AcquisitionConfig bounds the polling windows of the login state machine
type AcquisitionConfig struct {
	PollInterval         string `toml:"poll_interval"`
	SettleDelay          string `toml:"settle_delay"`           // Pause after navigation before classifying
	ReusePolls           int    `toml:"reuse_polls"`            // Window after reuse navigation
	ReusePollsAfterLoad  int    `toml:"reuse_polls_after_load"` // Window after the single reload
	DashboardPolls       int    `toml:"dashboard_polls"`
	DashboardPollsReload int    `toml:"dashboard_polls_reload"`
	TwoFactorProbe       string `toml:"two_factor_probe"` // Per-selector wait
	LocateTimeout        string `toml:"locate_timeout"`
	WarmUpHome           bool   `toml:"warm_up_home"` // Browse the home page before the login form
}

// OrchestratorConfig is the outer retry policy
type OrchestratorConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	Delay       string `toml:"delay"`
}

// SchedulerConfig enables the periodic keep-alive acquisition
type SchedulerConfig struct {
	KeepaliveSchedule string `toml:"keepalive_schedule"` // Cron expression, empty disables
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Port:            3001,
			Host:            "0.0.0.0",
			RateLimit:       1,
			RateBurst:       5,
			ShutdownTimeout: "10s",
			PipelineTimeout: "10m",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data/session",
			},
			File: FileConfig{
				Path: "./session_cookies.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Target: TargetConfig{
			HomeURL:           "https://www.tiendanube.com/",
			LoginURL:          "https://www.tiendanube.com/login",
			DashboardURL:      "https://perlastore6.mitiendanube.com/admin/v2/apps/envionube/ar/dashboard",
			LoginURLPatterns:  []string{"login", "signin"},
			AuthMarkers:       []string{"Dashboard", "Cargando"},
			LoginPromptMarker: "Iniciar sesión",
			CredentialHosts: []string{
				"nuvem-envio-app-back.ms.tiendanube.com",
				"mitiendanube.com",
				"tiendanube.com",
			},
			CredentialPaths:    []string{"/stores/orders", "/api/", "/admin/", "envionube"},
			ReferencePattern:   `#/shipping-details/([^/?#]+)`,
			DispatchURL:        "https://nuvem-envio-app-back.ms.tiendanube.com/stores/dispatches",
			DispatchLabel:      true,
			ContentDeclaration: false,
			Selectors: SelectorsConfig{
				Email:    "#user-mail",
				Password: "#pass",
				Submit:   ".js-tkit-loading-button",
				TwoFactorInputs: []string{
					"#code",
					"input[name='code']",
					"input[name='otp']",
					"input[type='tel']",
					"#authentication-factor-verify-page input",
				},
				TwoFactorSubmit: "#authentication-factor-verify-page input[type='submit']",
				Challenge: []string{
					"iframe[src*='recaptcha']",
					".g-recaptcha",
					"#recaptcha",
					"[data-sitekey]",
					".recaptcha-checkbox",
				},
				ChallengeFrame: "iframe[src*='recaptcha/api2/anchor']",
				ChallengeBoxes: []string{
					".recaptcha-checkbox-border",
					".rc-anchor-checkbox",
					"#recaptcha-anchor",
					".recaptcha-checkbox",
				},
				AppFrame:         `iframe[data-testid="iframe-app"]`,
				Search:           ".nimbus-input_input__rlcyv70",
				ResultsContainer: "table",
				ResultLink:       "tbody tr td a",
			},
		},
		Browser: BrowserConfig{
			Headless:       true,
			NoSandbox:      true,
			LaunchTimeout:  "30s",
			NavTimeout:     "60s",
			SubmitTimeout:  "30s",
			ElementTimeout: "10s",
		},
		Evasion: EvasionConfig{
			Advanced: true,
			Viewports: []models.Viewport{
				{Width: 1920, Height: 1080},
				{Width: 1366, Height: 768},
				{Width: 1440, Height: 900},
				{Width: 1536, Height: 864},
			},
			Locales:  []string{"es-ES", "es-AR"},
			Timezone: "America/Argentina/Buenos_Aires",
			Pacing: PacingConfig{
				KeystrokeMs:     [2]int{60, 140},
				BetweenFieldsMs: [2]int{400, 1200},
				BeforeSubmitMs:  [2]int{500, 1500},
				ReadingMs:       [2]int{1000, 3000},
				PointerStepMs:   [2]int{8, 25},
				RemediationMs:   [2]int{3000, 5000},
				TypoChance:      0.1,
			},
		},
		Acquisition: AcquisitionConfig{
			PollInterval:         "1s",
			SettleDelay:          "3s",
			ReusePolls:           20,
			ReusePollsAfterLoad:  10,
			DashboardPolls:       30,
			DashboardPollsReload: 10,
			TwoFactorProbe:       "8s",
			LocateTimeout:        "30s",
			WarmUpHome:           true,
		},
		Orchestrator: OrchestratorConfig{
			MaxAttempts: 3,
			Delay:       "2s",
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env vars.
// CLI flags are applied afterwards by the caller via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variables to config.
// The bare identity variables are honoured for compatibility with existing
// .env files; the SESSIONBROKER_ prefixed forms win when both are set.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SESSIONBROKER_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := firstEnv("SESSIONBROKER_SERVER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SESSIONBROKER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if storageType := os.Getenv("SESSIONBROKER_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("SESSIONBROKER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if filePath := os.Getenv("SESSIONBROKER_COOKIE_FILE"); filePath != "" {
		config.Storage.File.Path = filePath
	}

	// Logging configuration
	if level := os.Getenv("SESSIONBROKER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SESSIONBROKER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Identity
	if v := firstEnv("SESSIONBROKER_IDENTITY_EMAIL", "USER_EMAIL"); v != "" {
		config.Identity.Email = v
	}
	if v := firstEnv("SESSIONBROKER_IDENTITY_PASSWORD", "USER_PASSWORD"); v != "" {
		config.Identity.Password = v
	}
	if v := firstEnv("SESSIONBROKER_IDENTITY_TOTP_SECRET", "TOKEN_CODE"); v != "" {
		config.Identity.TOTPSecret = v
	}
	if v := firstEnv("SESSIONBROKER_API_TOKEN", "API_TOKEN"); v != "" {
		config.Identity.APIToken = v
	}

	// Browser configuration
	if headless := os.Getenv("SESSIONBROKER_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("SESSIONBROKER_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	// SIMPLE_MODE=true selects the lightweight launch
	if simple := firstEnv("SESSIONBROKER_SIMPLE_MODE", "SIMPLE_MODE"); simple != "" {
		if s, err := strconv.ParseBool(simple); err == nil {
			config.Evasion.Advanced = !s
		}
	}

	// Orchestrator
	if maxAttempts := firstEnv("SESSIONBROKER_MAX_ATTEMPTS", "MAX_ATTEMPTS"); maxAttempts != "" {
		if m, err := strconv.Atoi(maxAttempts); err == nil {
			config.Orchestrator.MaxAttempts = m
		}
	}
	if delay := os.Getenv("SESSIONBROKER_RETRY_DELAY"); delay != "" {
		config.Orchestrator.Delay = delay
	}

	if schedule := os.Getenv("SESSIONBROKER_KEEPALIVE_SCHEDULE"); schedule != "" {
		config.Scheduler.KeepaliveSchedule = schedule
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Flags have the highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate fails fast on configuration the broker cannot run without
func (c *Config) Validate() error {
	var missing []string
	if c.Identity.Email == "" {
		missing = append(missing, "USER_EMAIL")
	}
	if c.Identity.Password == "" {
		missing = append(missing, "USER_PASSWORD")
	}
	if c.Identity.TOTPSecret == "" {
		missing = append(missing, "TOKEN_CODE")
	}
	if c.Identity.APIToken == "" {
		missing = append(missing, "API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing identity configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Storage.Type {
	case "badger", "file":
	default:
		return fmt.Errorf("unsupported storage type %q (expected badger or file)", c.Storage.Type)
	}

	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("orchestrator.max_attempts must be at least 1, got %d", c.Orchestrator.MaxAttempts)
	}
	if c.Target.ReferencePattern == "" {
		return fmt.Errorf("target.reference_pattern is required")
	}

	if c.Scheduler.KeepaliveSchedule != "" {
		if err := ValidateSchedule(c.Scheduler.KeepaliveSchedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSchedule checks a cron expression with the scheduler's parser
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid keepalive schedule %q: %w", schedule, err)
	}
	return nil
}

// IdentityModel returns the immutable identity handed to the session engine
func (c *Config) IdentityModel() models.Identity {
	return models.Identity{
		Email:      c.Identity.Email,
		Password:   c.Identity.Password,
		TOTPSecret: c.Identity.TOTPSecret,
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string, returning fallback when the
// value is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// MillisRange converts a [min, max] millisecond pair into a delay range
func MillisRange(ms [2]int) models.DelayRange {
	lo, hi := ms[0], ms[1]
	if hi < lo {
		lo, hi = hi, lo
	}
	return models.DelayRange{
		Min: time.Duration(lo) * time.Millisecond,
		Max: time.Duration(hi) * time.Millisecond,
	}
}

// PacingPolicy builds the pacing policy the evasion generator hands to each profile
func (p PacingConfig) PacingPolicy() models.PacingPolicy {
	return models.PacingPolicy{
		Keystroke:     MillisRange(p.KeystrokeMs),
		BetweenFields: MillisRange(p.BetweenFieldsMs),
		BeforeSubmit:  MillisRange(p.BeforeSubmitMs),
		Reading:       MillisRange(p.ReadingMs),
		PointerStep:   MillisRange(p.PointerStepMs),
		Remediation:   MillisRange(p.RemediationMs),
		TypoChance:    p.TypoChance,
	}
}
