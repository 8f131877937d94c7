// Package ladder builds the fixed, lifetime-of-the-executor set of grid
// price levels (§4.1). Ported from grid_executor.py's _generate_grid_levels
// and _linear_distribution, rewritten onto exact decimal arithmetic — the
// Python original leans on float math (math.ceil/math.floor on float(...))
// at several points; this port keeps every computation in decimal.Decimal
// throughout, per spec §9 ("never float").
package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/pkg/types"
)

// safetyMargin is the 5% cushion added to the minimum per-level notional so
// rounding during quantization never pushes a level below the venue's floor.
var safetyMargin = decimal.RequireFromString("1.05")

// Level is one fixed price point on the ladder. Side/order-type/take-profit
// carry no per-level variance — they're identical across a grid and live
// here only so a Level is self-describing once handed to internal/level.
type Level struct {
	ID            string
	Price         decimal.Decimal
	AmountQuote   decimal.Decimal
	Side          types.GridSide
	TakeProfitPct decimal.Decimal
}

// Build computes the ladder for an executor at startup (§4.1). mid is the
// venue's mid-price at the moment of construction. The returned ladder is
// fixed for the executor's lifetime — rebuilding implies a restart.
func Build(cfg types.ExecutorConfig, rules types.InstrumentRules, mid decimal.Decimal) ([]Level, error) {
	if mid.Sign() <= 0 {
		return nil, fmt.Errorf("ladder: invalid mid price %s", mid)
	}

	// 1. Floor per level, with 5% safety margin.
	minNotional := decimal.Max(cfg.MinOrderAmountQuote, rules.MinNotional)
	minNotionalWithMargin := minNotional.Mul(safetyMargin)

	// 2. Floor in base: smallest multiple of min_base_amount_increment whose
	// product with mid is >= minNotionalWithMargin.
	minBaseAmount := types.QuantizeUp(minNotionalWithMargin.Div(mid), rules.MinBaseAmountIncrement)
	qMin := minBaseAmount.Mul(mid)

	// 3. Capacity cap.
	nCap := cfg.TotalAmountQuote.Div(qMin).IntPart()

	// 4. Spacing cap.
	gridRange := cfg.EndPrice.Sub(cfg.StartPrice).Div(cfg.StartPrice)
	minPriceStep := rules.MinPriceIncrement.Div(mid)
	minStep := decimal.Max(cfg.MinSpreadBetweenOrders, minPriceStep)
	nStep := gridRange.Div(minStep).IntPart()

	n := nCap
	if nStep < n {
		n = nStep
	}
	if n < 1 {
		n = 1
	}

	// 6. Per-level quote amount, shrinking n if the budget would be overshot.
	var quotePerLevel decimal.Decimal
	if n == 1 {
		quotePerLevel = qMin
	} else {
		nDec := decimal.NewFromInt(n)
		baseFloor := types.QuantizeDown(cfg.TotalAmountQuote.Div(mid.Mul(nDec)), rules.MinBaseAmountIncrement)
		basePerLevel := decimal.Max(minBaseAmount, baseFloor)
		quotePerLevel = basePerLevel.Mul(mid)
		if quotePerLevel.Sign() > 0 {
			maxN := cfg.TotalAmountQuote.Div(quotePerLevel).IntPart()
			if maxN < n {
				n = maxN
			}
		}
		if n < 1 {
			n = 1
			quotePerLevel = qMin
		}
	}

	prices := linearDistribution(int(n), cfg.StartPrice, cfg.EndPrice)

	levels := make([]Level, 0, len(prices))
	for i, p := range prices {
		levels = append(levels, Level{
			ID:            fmt.Sprintf("L%d", i),
			Price:         p,
			AmountQuote:   quotePerLevel,
			Side:          cfg.Side,
			TakeProfitPct: cfg.TakeProfitPct,
		})
	}
	return levels, nil
}

// linearDistribution returns n prices evenly spaced across [start, end]
// inclusive. A single level sits at the midpoint (§4.1 step 5).
func linearDistribution(n int, start, end decimal.Decimal) []decimal.Decimal {
	if n <= 1 {
		mid := start.Add(end).Div(decimal.NewFromInt(2))
		return []decimal.Decimal{mid}
	}
	step := end.Sub(start).Div(decimal.NewFromInt(int64(n - 1)))
	prices := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		prices[i] = start.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}
	return prices
}
