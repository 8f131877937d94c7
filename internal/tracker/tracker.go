// Package tracker implements the Order Tracker (§4.2): a mirror of one live
// order that ingests updates from either a REST snapshot poll or the
// asynchronous event stream, with identical semantics either way. Grounded
// on grid_executor.py's _update_order_status/update_all_order_status and
// data_models.py's inferred TrackedOrder — and on internal/strategy/maker.go's
// handleFill/handleOrderEvent idiom for treating both update paths as the
// same code path.
package tracker

import (
	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/pkg/types"
)

var filledStatuses = map[string]bool{
	"FILLED": true,
	"CLOSED": true,
}

var doneStatuses = map[string]bool{
	"FILLED":   true,
	"CLOSED":   true,
	"CANCELED": true,
	"EXPIRED":  true,
	"REJECTED": true,
}

// Order mirrors one venue order. Every field not explicitly reassigned is
// "owned" by the creator (price, intended amount, side); executed amounts,
// fees, and status arrive from the venue and are applied via Apply.
type Order struct {
	OrderID        string
	ClientOrderID  string
	Side           types.Side
	Price          decimal.Decimal
	IntendedAmount decimal.Decimal

	ExecutedAmountBase  decimal.Decimal
	ExecutedAmountQuote decimal.Decimal
	CumFeesQuote        decimal.Decimal

	Status string
}

// IsFilled reports whether the order has fully executed.
func (o *Order) IsFilled() bool { return filledStatuses[o.Status] }

// IsDone reports whether the order has reached a terminal state — filled,
// cancelled, expired, or rejected.
func (o *Order) IsDone() bool { return doneStatuses[o.Status] }

// IsPartiallyFilled reports executed_amount_base > 0 ∧ ¬is_filled (§3).
func (o *Order) IsPartiallyFilled() bool {
	return o.ExecutedAmountBase.Sign() > 0 && !o.IsFilled()
}

// New builds a freshly-placed Tracked Order.
func New(orderID, clientOrderID string, side types.Side, price, amount decimal.Decimal) *Order {
	return &Order{
		OrderID:        orderID,
		ClientOrderID:  clientOrderID,
		Side:           side,
		Price:          price,
		IntendedAmount: amount,
		Status:         "NEW",
	}
}

// Apply ingests one update, whether it came from a REST snapshot poll or
// the user-data event stream — both arrive as the same types.OrderSnapshot
// shape (§4.2). Updates are monotonic: once IsDone is true, further updates
// are silently ignored, and fee/executed-quote fields are overwritten with
// the latest cumulative values, never summed.
func (o *Order) Apply(snap types.OrderSnapshot) {
	if o.IsDone() {
		return
	}
	o.Status = snap.Status
	o.ExecutedAmountBase = snap.FilledBase
	o.ExecutedAmountQuote = snap.FilledQuote
	o.CumFeesQuote = snap.FeeQuote
}
