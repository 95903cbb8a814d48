package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/core"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/session"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Build(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend, "session_cache", cfg.SessionCache)
		os.Exit(1)
	}

	console := ledger.NewConsole(ledger.Deps{
		Gateway:       res.Gateway,
		Cache:         session.New(res.KV, logger),
		Notifier:      res.Notifier,
		Logger:        logger,
		Bounds:        core.YearBounds{Min: core.FiscalYear(cfg.FiscalYearMin), Max: core.FiscalYear(cfg.FiscalYearMax)},
		DefaultBudget: cfg.DefaultBudget(),
	})

	var warmer *worker.CacheWarmer
	if cfg.CacheWarmSchedule != "" {
		warmer, err = worker.NewCacheWarmer(console, cfg.CacheWarmSchedule, cfg.RemoteTimeout, logger)
		if err != nil {
			logger.Error("Failed to schedule cache warmer", "error", err)
			os.Exit(1)
		}
		if err := warmer.RunOnce(context.Background()); err != nil {
			logger.Warn("Initial cache warm failed", "error", err)
		}
		warmer.Start()
	}

	srv := apphttp.NewServer(":"+cfg.Port, console, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Recent:             res.Recent,
		WriteTimeout:       cfg.RemoteTimeout + 15*time.Second,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if warmer != nil {
			warmer.Stop(ctx)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting ledger server", log.FieldOperation, log.OpStartup,
		"port", cfg.Port, "backend", cfg.DataBackend, "session_cache", cfg.SessionCache)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
