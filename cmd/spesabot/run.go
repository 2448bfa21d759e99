package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArionMiles/spesabot/internal/daemon"
	"github.com/ArionMiles/spesabot/internal/plugins"
	"github.com/ArionMiles/spesabot/pkg/config"
)

// runBot starts the bot and blocks until SIGINT/SIGTERM.
func runBot(logger *slog.Logger, registry *plugins.Registry) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	return daemon.New(registry, logger).Run(ctx, cfg)
}
