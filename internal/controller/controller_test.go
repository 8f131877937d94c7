package controller

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dualgrid/dualgrid/internal/venue/mock"
	"github.com/dualgrid/dualgrid/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRules() types.InstrumentRules {
	return types.InstrumentRules{
		Pair:                   "BTCUSDT",
		MinPriceIncrement:      decimal.RequireFromString("0.01"),
		MinBaseAmountIncrement: decimal.RequireFromString("0.0001"),
		MinNotional:            decimal.RequireFromString("10"),
		MinOrderSize:           decimal.RequireFromString("0.0001"),
	}
}

func testExecutorConfig(id string, side types.GridSide) types.ExecutorConfig {
	return types.ExecutorConfig{
		ID:               id,
		Pair:             "BTCUSDT",
		Side:             side,
		StartPrice:       decimal.RequireFromString("29000"),
		EndPrice:         decimal.RequireFromString("31000"),
		TotalAmountQuote: decimal.RequireFromString("1000"),
		MaxOpenOrders:    2,
		TakeProfitPct:    decimal.RequireFromString("0.01"),
		SafeExtraSpread:  decimal.RequireFromString("0.001"),
		Leverage:         5,
		UpdateInterval:   10 * time.Millisecond,
		MaxRetries:       3,
	}
}

func TestController_StartValidatesBalance(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")

	venueA := mock.New(mid, rules)
	venueB := mock.New(mid, rules)
	venueA.SetBalance(decimal.RequireFromString("1")) // far too small for leverage×1000 required

	c := New(venueA, venueB, testLogger())
	err := c.Start(ctx, testExecutorConfig("long", types.GridLong), testExecutorConfig("short", types.GridShort))
	require.Error(t, err)
}

func TestController_StartRunsExecutorsAndStop(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")

	venueA := mock.New(mid, rules)
	venueB := mock.New(mid, rules)

	c := New(venueA, venueB, testLogger())
	err := c.Start(ctx, testExecutorConfig("long", types.GridLong), testExecutorConfig("short", types.GridShort))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := c.Status()
		return s.Long.OpenPlaced+s.Long.NotActive > 0 && s.Short.OpenPlaced+s.Short.NotActive > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop(ctx))

	open, err := venueA.OpenOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, open)

	s := c.Status()
	require.False(t, s.Running)
}

func TestController_StopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")

	venueA := mock.New(mid, rules)
	venueB := mock.New(mid, rules)

	c := New(venueA, venueB, testLogger())
	require.NoError(t, c.Start(ctx, testExecutorConfig("long", types.GridLong), testExecutorConfig("short", types.GridShort)))

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestController_LivenessStopsOnDisconnect(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")

	venueA := mock.New(mid, rules)
	venueB := mock.New(mid, rules)

	c := New(venueA, venueB, testLogger())
	require.NoError(t, c.Start(ctx, testExecutorConfig("long", types.GridLong), testExecutorConfig("short", types.GridShort)))

	venueB.SetConnected(false)

	require.Eventually(t, func() bool {
		return !c.Status().Running
	}, 5*time.Second, 10*time.Millisecond)
}
