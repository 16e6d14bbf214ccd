package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/riskibarqy/match-odds-engine/internal/app"
	"github.com/riskibarqy/match-odds-engine/internal/config"
	"github.com/riskibarqy/match-odds-engine/internal/observability"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	stopProfiling, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	logger.Info("engine starting",
		"env", cfg.AppEnv,
		"db_driver", cfg.DBDriver,
		"leagues", cfg.FootballLeagues,
		"credentials", len(cfg.OddsAPIKeys),
		"advisory", cfg.AdvisoryEnabled,
		"telegram", cfg.TelegramEnabled(),
	)
	runErr := engine.Run(ctx)

	if err := engine.Close(); err != nil {
		logger.Error("close app", "error", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Error("shutdown uptrace", "error", err)
	}
	if err := stopProfiling(); err != nil {
		logger.Error("stop pyroscope", "error", err)
	}

	if runErr != nil {
		logger.Error("engine stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("engine stopped")
}
