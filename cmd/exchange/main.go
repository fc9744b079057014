package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akareen/RedleafExchange/internal/app/engine"
	"github.com/akareen/RedleafExchange/pkg/config"
	"github.com/akareen/RedleafExchange/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Level(cfg.App.LogLevel))
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	eng, err := engine.New(ctx, cfg, log)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}

	log.Info("exchange ready",
		logger.Field{Key: "next_order_id", Value: eng.Exchange().NextOrderID()},
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down exchange...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
		os.Exit(1)
	}

	log.Info("exchange stopped")
}
