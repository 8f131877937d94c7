// Command run is the long-running dual-account hedge grid supervisor:
// it loads config, connects both exchange accounts, starts the strategy
// controller, and serves /healthz and /metrics until told to stop.
//
// Grounded on cmd/bot/main.go's entry-point shape (config load, slog
// setup, dashboard goroutine, signal wait, graceful stop), restructured
// around internal/controller.Controller in place of internal/engine.Engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dualgrid/dualgrid/internal/config"
	"github.com/dualgrid/dualgrid/internal/controller"
	"github.com/dualgrid/dualgrid/internal/health"
	"github.com/dualgrid/dualgrid/internal/venue/live"
	"github.com/dualgrid/dualgrid/pkg/types"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code per §6.3: 0 when the controller stopped
// itself and the stop sequence left both accounts flat, 1 for a fatal
// startup error or a failed stop sequence, 130 on SIGINT/SIGTERM.
func run() int {
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GRIDBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return 1
	}

	logger := slog.New(newHandler(cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	venueA, err := live.New(ctx, live.Config{
		APIKey:    cfg.Accounts.A.APIKey,
		APISecret: cfg.Accounts.A.APISecret,
		BaseURL:   cfg.Accounts.A.BaseURL,
		WSUserURL: cfg.Accounts.A.WSUserURL,
		Pair:      cfg.Grid.Pair,
		DryRun:    cfg.DryRun,
	}, logger)
	if err != nil {
		logger.Error("failed to connect account A", "error", err)
		return 1
	}
	defer venueA.Close()

	venueB, err := live.New(ctx, live.Config{
		APIKey:    cfg.Accounts.B.APIKey,
		APISecret: cfg.Accounts.B.APISecret,
		BaseURL:   cfg.Accounts.B.BaseURL,
		WSUserURL: cfg.Accounts.B.WSUserURL,
		Pair:      cfg.Grid.Pair,
		DryRun:    cfg.DryRun,
	}, logger)
	if err != nil {
		logger.Error("failed to connect account B", "error", err)
		return 1
	}
	defer venueB.Close()

	ctrl := controller.New(venueA, venueB, logger)

	longCfg := cfg.ToExecutorConfig("long", types.GridLong)
	shortCfg := cfg.ToExecutorConfig("short", types.GridShort)

	if err := ctrl.Start(ctx, longCfg, shortCfg); err != nil {
		logger.Error("failed to start strategy controller", "error", err)
		return 1
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	var healthSrv *health.Server
	if cfg.Health.Enabled {
		healthSrv = health.NewServer(cfg.Health.Addr, ctrl, logger)
		go func() {
			if err := healthSrv.Start(); err != nil {
				logger.Error("health server failed", "error", err)
			}
		}()
		logger.Info("health server started", "addr", cfg.Health.Addr)
	}

	logger.Info("dual grid strategy running",
		"pair", cfg.Grid.Pair,
		"leverage", cfg.Grid.Leverage,
		"total_amount_quote", cfg.Grid.TotalAmountQuote.String(),
		"dry_run", cfg.DryRun,
	)

	selfStopped := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-ctrl.Done():
		// The controller stopped itself (§7: an executor exhausted its
		// retry budget, or the supervisor's liveness check fired) without
		// the process ever receiving a signal.
		selfStopped = true
		logger.Error("strategy controller stopped itself, shutting down")
	}

	if healthSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthSrv.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop health server", "error", err)
		}
		cancel()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		logger.Error("strategy controller stop reported errors", "error", err)
		return 1
	}
	if selfStopped {
		return 0
	}

	return 130
}

func newHandler(level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
