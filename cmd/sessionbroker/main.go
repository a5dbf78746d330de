package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported
	serverPort  int
	serverHost  string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "sessionbroker",
	Short: "Authenticated browser session broker",
	Long: `SessionBroker keeps a signed-in browser session for one account, captures
its bearer credential and dispatches orders on request.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(serveCmd, dispatchCmd, sessionCmd, versionCmd)
}

func main() {
	common.InstallCrashHandler(common.LogDir())
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence shared by every command that
// touches the broker:
// 1. .env into the environment (optional)
// 2. config (defaults -> file1 -> file2 -> ... -> env)
// 3. CLI overrides
// 4. logger
// 5. validation
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	// A missing .env is normal in containers
	_ = godotenv.Load()

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("sessionbroker.toml"); err == nil {
			configFiles = append(configFiles, "sessionbroker.toml")
		} else if _, err := os.Stat("deployments/local/sessionbroker.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/sessionbroker.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		return err
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost)

	logger = common.InitLogger(config)

	if err := config.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("storage_type", config.Storage.Type).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("keepalive", config.Scheduler.KeepaliveSchedule).
		Msg("Resolved configuration (sanitized)")

	return nil
}
