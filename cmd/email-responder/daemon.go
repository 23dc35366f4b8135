package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/di"
	"github.com/mikey/llm-email-responder/internal/workflow"
)

var shutdownTimeout time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Process email on a schedule and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, err := di.BuildContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		return container.Invoke(func(app di.App, scheduler *workflow.Scheduler) error {
			defer app.Close()

			if err := app.Start(ctx); err != nil {
				return err
			}
			if err := app.Server.Start(); err != nil {
				return err
			}
			scheduler.Start()

			<-ctx.Done()
			logger.Info("Shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			scheduler.Stop(shutdownCtx)
			if err := app.Server.Stop(shutdownCtx); err != nil {
				logger.Error("Failed to stop HTTP server", zap.Error(err))
			}
			logger.Info("Shutdown complete")
			return nil
		})
	},
}

func init() {
	daemonCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight work on shutdown")
}
