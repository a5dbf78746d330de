package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/sessionbroker/internal/app"
	"github.com/ternarybob/sessionbroker/internal/common"
)

var orderID string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Acquire a session and dispatch one order",
	Long:  `Runs the same pipeline as the webhook once, without starting the server, and prints the result as JSON.`,
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&orderID, "order", "", "Order id to dispatch")
	_ = dispatchCmd.MarkFlagRequired("order")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := commandContext()
	defer cancel()

	result, err := application.Broker.AcquireAndDispatch(ctx, orderID)
	if err != nil {
		logger.Error().Str("order_id", orderID).Err(err).Msg("Dispatch failed")
		return err
	}

	return printJSON(result)
}

// commandContext is cancelled by Ctrl+C or after one pipeline timeout
func commandContext() (context.Context, context.CancelFunc) {
	timeout := common.ParseDuration(config.Server.PipelineTimeout, 10*time.Minute)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
