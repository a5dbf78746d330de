package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/sessionbroker/internal/app"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or manage the stored session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the stored jar summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			ctx, cancel := commandContext()
			defer cancel()
			return printJSON(a.Broker.Status(ctx))
		})
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Invalidate the stored jar so the next run signs in again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			ctx, cancel := commandContext()
			defer cancel()
			a.Broker.ClearSession(ctx)
			logger.Info().Msg("Session cleared")
			return nil
		})
	},
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Acquire a session without dispatching and store its jar",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			ctx, cancel := commandContext()
			defer cancel()
			attempt, err := a.Broker.WarmSession(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Session refresh failed")
				return err
			}
			return printJSON(attempt)
		})
	},
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd, sessionClearCmd, sessionRefreshCmd)
}

func withApp(fn func(a *app.App) error) error {
	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}
