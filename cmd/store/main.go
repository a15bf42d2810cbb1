package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"iftar-reg/internal/config"
	"iftar-reg/internal/server"
	"iftar-reg/internal/sheets"
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

	if err := cfg.RequireStore(); err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	sheetsClient, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID, cfg.SheetName)
	if err != nil {
		logger.Error("sheets", "err", err)
		os.Exit(1)
	}
	if err := sheetsClient.EnsureHeader(ctx); err != nil {
		logger.Error("sheets header", "err", err)
		os.Exit(1)
	}

	httpSrv := server.New(cfg, sheetsClient, logger)

	// Start HTTP server
	go func() {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr, "sheet", sheetsClient.Sheet())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctxTimeout)

	logger.Info("bye")
}
