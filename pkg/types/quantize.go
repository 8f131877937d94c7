package types

import "github.com/shopspring/decimal"

// QuantizeDown rounds x down to the nearest multiple of increment — toward
// zero for a positive x. Used for amounts (always round down, §3 invariant
// 6) and for open-order prices.
func QuantizeDown(x, increment decimal.Decimal) decimal.Decimal {
	if increment.Sign() <= 0 {
		return x
	}
	return x.Div(increment).Floor().Mul(increment)
}

// QuantizeUp rounds x up to the nearest multiple of increment — away from
// zero. Used for close-order prices after the safety-spread adjustment.
func QuantizeUp(x, increment decimal.Decimal) decimal.Decimal {
	if increment.Sign() <= 0 {
		return x
	}
	return x.Div(increment).Ceil().Mul(increment)
}
