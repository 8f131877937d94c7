package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dualgrid/dualgrid/internal/level"
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

// newTestExecutor builds an Executor directly, bypassing New/ladder.Build, so
// a test can control the exact set of levels and their prices.
func newTestExecutor(v *mock.Venue, cfg types.ExecutorConfig, rules types.InstrumentRules, levels ...*level.Level) *Executor {
	return &Executor{
		id:     cfg.ID,
		cfg:    cfg,
		rules:  rules,
		venue:  v,
		logger: testLogger(),
		levels: levels,
		state:  StateRunning,
	}
}

func baseConfig(side types.GridSide) types.ExecutorConfig {
	return types.ExecutorConfig{
		ID:              "test-" + string(side),
		Pair:            "BTCUSDT",
		Side:            side,
		TakeProfitPct:   decimal.RequireFromString("0.01"),
		SafeExtraSpread: decimal.RequireFromString("0.02"),
		MaxOpenOrders:   1,
		MaxRetries:      5,
		UpdateInterval:  time.Second,
	}
}

func TestExecutor_OpenFillCloseCycle(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")
	v := mock.New(mid, rules)

	lvl := level.New("L0", decimal.RequireFromString("29900"), decimal.RequireFromString("1000"), types.GridLong, decimal.RequireFromString("0.01"))
	cfg := baseConfig(types.GridLong)
	// A reset level is eligible again in the same tick that completes it;
	// order_frequency holds back that re-open so the reset is observable.
	cfg.OrderFrequency = time.Hour
	ex := newTestExecutor(v, cfg, rules, lvl)

	require.NoError(t, ex.tick(ctx))
	require.Equal(t, level.OpenPlaced, lvl.State())
	oo := lvl.OpenOrder()
	require.NotNil(t, oo)

	filledQuote := oo.IntendedAmount.Mul(oo.Price)
	v.Fill(oo.OrderID, oo.IntendedAmount, filledQuote, decimal.Zero, true)

	require.NoError(t, ex.tick(ctx))
	require.Equal(t, level.ClosePlaced, lvl.State())
	co := lvl.CloseOrder()
	require.NotNil(t, co)
	require.True(t, co.Price.GreaterThan(oo.Price), "take-profit price must sit above the open fill for a LONG close")

	closedQuote := co.IntendedAmount.Mul(co.Price)
	v.Fill(co.OrderID, co.IntendedAmount, closedQuote, decimal.Zero, true)

	require.NoError(t, ex.tick(ctx))
	require.Equal(t, level.NotActive, lvl.State())
	require.Nil(t, lvl.OpenOrder())
	require.Nil(t, lvl.CloseOrder())
}

func TestExecutor_OrderFrequencyThrottle(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")
	v := mock.New(mid, rules)

	lvl := level.New("L0", decimal.RequireFromString("29900"), decimal.RequireFromString("1000"), types.GridLong, decimal.RequireFromString("0.01"))
	cfg := baseConfig(types.GridLong)
	cfg.OrderFrequency = time.Hour
	ex := newTestExecutor(v, cfg, rules, lvl)

	require.NoError(t, ex.tick(ctx))
	oo := lvl.OpenOrder()
	require.NotNil(t, oo)

	// Cancel the order venue-side and let the level return to NOT_ACTIVE.
	_, err := v.Cancel(ctx, oo.OrderID)
	require.NoError(t, err)
	require.NoError(t, ex.tick(ctx)) // refresh sees CANCELED, resets the slot
	require.Equal(t, level.NotActive, lvl.State())

	// Still within the order_frequency window: no new open is placed.
	require.NoError(t, ex.tick(ctx))
	require.Nil(t, lvl.OpenOrder())

	// Advance the clock past order_frequency.
	ex.mu.Lock()
	ex.lastOpenPlacedAt = time.Now().Add(-2 * time.Hour)
	ex.mu.Unlock()

	require.NoError(t, ex.tick(ctx))
	require.NotNil(t, lvl.OpenOrder())
}

func TestExecutor_ActivationBoundsCancelsOpenOrder(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")
	v := mock.New(mid, rules)

	lvl := level.New("L0", decimal.RequireFromString("29900"), decimal.RequireFromString("1000"), types.GridLong, decimal.RequireFromString("0.01"))
	cfg := baseConfig(types.GridLong)
	bounds := decimal.RequireFromString("0.01")
	cfg.ActivationBounds = &bounds
	ex := newTestExecutor(v, cfg, rules, lvl)

	require.NoError(t, ex.tick(ctx))
	oo := lvl.OpenOrder()
	require.NotNil(t, oo)
	require.Equal(t, level.OpenPlaced, lvl.State())

	// Mid runs far away: the level falls outside its activation bounds.
	v.SetMidPrice(decimal.RequireFromString("35000"))

	require.NoError(t, ex.tick(ctx)) // decide cancels venue-side; local mirror still NEW
	require.Equal(t, level.OpenPlaced, lvl.State())

	require.NoError(t, ex.tick(ctx)) // refresh observes CANCELED, resets the slot
	require.Equal(t, level.NotActive, lvl.State())
	require.Nil(t, lvl.OpenOrder())
}

func TestExecutor_PartialFillStaysOpenPlaced(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")
	v := mock.New(mid, rules)

	lvl := level.New("L0", decimal.RequireFromString("29900"), decimal.RequireFromString("1000"), types.GridLong, decimal.RequireFromString("0.01"))
	cfg := baseConfig(types.GridLong)
	ex := newTestExecutor(v, cfg, rules, lvl)

	require.NoError(t, ex.tick(ctx))
	oo := lvl.OpenOrder()
	require.NotNil(t, oo)

	half := oo.IntendedAmount.Div(decimal.NewFromInt(2))
	v.Fill(oo.OrderID, half, half.Mul(oo.Price), decimal.Zero, false)

	require.NoError(t, ex.tick(ctx))
	require.Equal(t, level.OpenPlaced, lvl.State())
	require.True(t, lvl.OpenOrder().IsPartiallyFilled())
}

func TestExecutor_AdverseTakeProfitUsesSafeSpread(t *testing.T) {
	ctx := context.Background()
	rules := testRules()
	mid := decimal.RequireFromString("30000")
	v := mock.New(mid, rules)

	lvl := level.New("L0", decimal.RequireFromString("29900"), decimal.RequireFromString("1000"), types.GridLong, decimal.RequireFromString("0.01"))
	cfg := baseConfig(types.GridLong)
	ex := newTestExecutor(v, cfg, rules, lvl)

	require.NoError(t, ex.tick(ctx))
	oo := lvl.OpenOrder()
	require.NotNil(t, oo)
	fillPrice := oo.Price
	v.Fill(oo.OrderID, oo.IntendedAmount, oo.IntendedAmount.Mul(fillPrice), decimal.Zero, true)

	// Mid rallies past the naive take-profit target (fillPrice * 1.01).
	v.SetMidPrice(decimal.RequireFromString("31000"))

	require.NoError(t, ex.tick(ctx))
	require.Equal(t, level.ClosePlaced, lvl.State())
	co := lvl.CloseOrder()
	require.NotNil(t, co)

	expected := quantizeClosePrice(types.GridLong, decimal.RequireFromString("31000").Mul(decimal.RequireFromString("1.02")), rules.MinPriceIncrement)
	require.True(t, co.Price.Equal(expected), "want %s got %s", expected, co.Price)
}
