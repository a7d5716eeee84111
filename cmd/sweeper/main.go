package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/ea-access/internal/app/sweeper"
	"github.com/magabrotheeeer/ea-access/internal/config"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	var logger *slog.Logger
	if cfg.Env == "local" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	logger.Info("starting sweeper", slog.String("env", cfg.Env), slog.Duration("interval", cfg.Sweeper.Interval))

	if cfg.StorageType == config.StorageMemory {
		logger.Error("sweeper needs shared storage, memory storage is only swept inside ea-access")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sweeper.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sweeper", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("sweeper stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("sweeper stopped gracefully")
}
