// Pricing and eligibility rules of §4.5: activation-bounds testing and
// take-profit price/amount computation. Ported from grid_executor.py's
// _filter_levels_by_activation_bounds and _get_take_profit_price.
package executor

import (
	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/pkg/types"
)

// withinActivationBounds reports whether price is close enough to mid to
// stay eligible: |p - mid| / mid <= bounds. A nil bounds means every price
// is always eligible (§4.5).
func withinActivationBounds(price, mid decimal.Decimal, bounds *decimal.Decimal) bool {
	if bounds == nil {
		return true
	}
	if mid.Sign() == 0 {
		return false
	}
	dist := price.Sub(mid).Abs().Div(mid)
	return dist.LessThanOrEqual(*bounds)
}

// takeProfitPrice computes the raw (pre-quantization) take-profit target for
// a level whose open order filled at openFillPrice, given the current mid.
//
// LONG: sell at openFillPrice * (1 + tp); if that's already below mid
// (adverse move), raise it to mid * (1 + safeExtraSpread).
// SHORT: buy at openFillPrice * (1 - tp); if above mid, lower it to
// mid * (1 - safeExtraSpread).
func takeProfitPrice(cfg types.ExecutorConfig, openFillPrice, mid decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if cfg.Side == types.GridLong {
		target := openFillPrice.Mul(one.Add(cfg.TakeProfitPct))
		if target.LessThan(mid) {
			return mid.Mul(one.Add(cfg.SafeExtraSpread))
		}
		return target
	}
	target := openFillPrice.Mul(one.Sub(cfg.TakeProfitPct))
	if target.GreaterThan(mid) {
		return mid.Mul(one.Sub(cfg.SafeExtraSpread))
	}
	return target
}

// quantizeClosePrice rounds a close price away from the level, per §3
// invariant 6: LONG close (a sell) rounds up so it never drops below its
// adverse-move floor; SHORT close (a buy) rounds down so it never rises
// above its adverse-move ceiling.
func quantizeClosePrice(side types.GridSide, price, increment decimal.Decimal) decimal.Decimal {
	if side == types.GridLong {
		return types.QuantizeUp(price, increment)
	}
	return types.QuantizeDown(price, increment)
}

// quantizeOpenPrice rounds an open price toward zero (§3 invariant 6); for
// any positive price that is a floor.
func quantizeOpenPrice(price, increment decimal.Decimal) decimal.Decimal {
	return types.QuantizeDown(price, increment)
}

// closeAmount computes the close order's base amount from the open order's
// executed base amount, reduced by the fee-adjustment heuristic (§9 Open
// Question (c)) and quantized down to the venue's base increment. The bool
// is false if the result falls below the venue's minimum order size, in
// which case the caller must not place a close order this tick (§4.5).
func closeAmount(cfg types.ExecutorConfig, rules types.InstrumentRules, openExecutedBase decimal.Decimal) (decimal.Decimal, bool) {
	adjusted := openExecutedBase.Mul(decimal.NewFromInt(1).Sub(cfg.FeeAdjustmentPct))
	amount := types.QuantizeDown(adjusted, rules.MinBaseAmountIncrement)
	if amount.LessThan(rules.MinOrderSize) {
		return decimal.Zero, false
	}
	return amount, true
}
