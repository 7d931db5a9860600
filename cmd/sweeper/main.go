// Command sweeper expires pending holds whose deadline has passed. It runs a
// single sweep and exits, and is meant to be scheduled every minute by cron
// or a Kubernetes CronJob. The exit code is non-zero only when no inventory
// kind could be swept.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/kirinyoku/tripavail/internal/app"
	"github.com/kirinyoku/tripavail/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	res := application.Services().Sweeper.ExpirePendingHolds(ctx)
	application.Close()

	if !res.Success {
		logger.Error("sweep failed", "error", res.Error)
		os.Exit(1)
	}

	if res.Partial() {
		logger.Warn("sweep partially failed", "failed_kinds", res.FailedKinds, "error", res.Error)
	}
}
