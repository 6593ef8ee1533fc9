package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipscope/clipscope/internal/app"
	"github.com/clipscope/clipscope/internal/config"
	"github.com/clipscope/clipscope/internal/logging"
	"github.com/clipscope/clipscope/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	logger.Info("starting clipscope", "database", cfg.Database.Driver, "analysis_provider", cfg.Analysis.Provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Postgres creation notifications
	go func() {
		if err := a.Listen(ctx); err != nil {
			logger.Error("database listener stopped", "error", err)
		}
	}()

	if poller := a.Poller(); poller != nil {
		logger.Info("starting tweet poller", "accounts", len(cfg.Twitter.Accounts))
		go func() {
			if err := poller.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("tweet poller stopped", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, logger, a.Handler())

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("clipscope started", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	cancel()
	if err := a.Close(); err != nil {
		logger.Error("close error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
}
