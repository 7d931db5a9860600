package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/tripavail/docs"
	"github.com/kirinyoku/tripavail/internal/app"
	"github.com/kirinyoku/tripavail/internal/config"
)

// @title TripAvail API
// @version 1.0
// @description Time-boxed holds on tour seats and package stays, payment reconciliation and hold expiry.
// @host localhost:8080
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
