// Command cleanup is the one-shot emergency-flatten binary (§12.2): it
// connects both exchange accounts and runs the identical cancel-all /
// close-all-positions / verify-flat sequence the controller runs on
// startup, then exits — for operators who need to flatten both accounts
// without starting the strategy.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dualgrid/dualgrid/internal/config"
	"github.com/dualgrid/dualgrid/internal/controller"
	"github.com/dualgrid/dualgrid/internal/venue/live"
)

func main() {
	os.Exit(run())
}

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
	if cfg.Accounts.A.APIKey == "" || cfg.Accounts.B.APIKey == "" {
		slog.Error("accounts.a and accounts.b credentials are required")
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

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

	if err := ctrl.Cleanup(ctx); err != nil {
		logger.Error("cleanup failed, accounts may not be flat", "error", err)
		return 1
	}

	logger.Info("both accounts flat, no open orders or positions remain")
	return 0
}
