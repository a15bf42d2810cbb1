package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"iftar-reg/internal/config"
	"iftar-reg/internal/feed"
	"iftar-reg/internal/store"
	"iftar-reg/internal/tgbot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.RequireBot(); err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	storeClient, err := store.New(cfg.StoreURL,
		store.WithTimeout(cfg.StoreTimeout),
		store.WithConfirmWrites(cfg.StoreConfirmWrites),
		store.WithLogger(logger),
	)
	if err != nil {
		logger.Error("store", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registrants := feed.New(storeClient, cfg.FeedPollInterval, logger)
	go registrants.Run(ctx)

	botApp, err := tgbot.New(cfg, storeClient, registrants, logger)
	if err != nil {
		logger.Error("telegram", "err", err)
		os.Exit(1)
	}

	// Start Telegram
	go func() {
		if err := botApp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bot stopped", "err", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down...")
	cancel()
	logger.Info("bye")
}
