// Package level implements the Grid Level and its state machine (§4.3):
// state is derived by rule from a level's two order slots, never set
// independently. Grounded on grid_executor.py's GridLevelStates table and
// update_grid_levels/reset_level/reset_open_order/reset_close_order, with
// the mutex-protected-struct idiom of internal/strategy/inventory.go's
// Inventory.
package level

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/internal/tracker"
	"github.com/dualgrid/dualgrid/pkg/types"
)

// State is the derived lifecycle state of one grid level (§4.3 table).
type State int

const (
	NotActive State = iota
	OpenPlaced
	OpenFilled
	ClosePlaced
	Complete
)

func (s State) String() string {
	switch s {
	case NotActive:
		return "NOT_ACTIVE"
	case OpenPlaced:
		return "OPEN_PLACED"
	case OpenFilled:
		return "OPEN_FILLED"
	case ClosePlaced:
		return "CLOSE_PLACED"
	case Complete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Level is a fixed price point on the ladder, created at startup and never
// destroyed — only reset and reused (§3).
type Level struct {
	mu sync.Mutex

	ID            string
	Price         decimal.Decimal
	AmountQuote   decimal.Decimal
	Side          types.GridSide
	TakeProfitPct decimal.Decimal

	openOrder  *tracker.Order
	closeOrder *tracker.Order

	// LastOpenPlacedAt records the Unix time at which the current open
	// order was attached. The executor enforces order_frequency (§4.4) from
	// its own executor-wide placement clock, not from this field.
	LastOpenPlacedAt int64
}

// New constructs a fresh NOT_ACTIVE level.
func New(id string, price, amountQuote decimal.Decimal, side types.GridSide, takeProfitPct decimal.Decimal) *Level {
	return &Level{ID: id, Price: price, AmountQuote: amountQuote, Side: side, TakeProfitPct: takeProfitPct}
}

// State derives the level's lifecycle state from its two slots, per the
// §4.3 table. Must be called after every order update and before any
// decision.
func (l *Level) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Level) stateLocked() State {
	open, close := l.openOrder, l.closeOrder
	switch {
	case open == nil:
		return NotActive
	case !open.IsDone():
		return OpenPlaced
	case !open.IsFilled():
		// present, done, ¬filled → NOT_ACTIVE (open slot cleared by caller)
		return NotActive
	case close == nil:
		return OpenFilled
	case !close.IsDone():
		return ClosePlaced
	case !close.IsFilled():
		// present, filled / present, done, ¬filled → OPEN_FILLED (close slot cleared)
		return OpenFilled
	default:
		return Complete
	}
}

// OpenOrder returns the active open-order slot, or nil.
func (l *Level) OpenOrder() *tracker.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openOrder
}

// CloseOrder returns the active close-order slot, or nil.
func (l *Level) CloseOrder() *tracker.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeOrder
}

// AttachOpenOrder sets the level's open slot after a successful placement.
// It does not check for an already-attached open order and overwrites it —
// invariant 1 (§3) is the caller's responsibility to uphold by only calling
// this from NOT_ACTIVE.
func (l *Level) AttachOpenOrder(o *tracker.Order, placedAtUnix int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openOrder = o
	l.LastOpenPlacedAt = placedAtUnix
}

// AttachCloseOrder sets the level's close slot after a successful placement.
func (l *Level) AttachCloseOrder(o *tracker.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeOrder = o
}

// ResetOpenOrder clears a terminal, non-filled open order so the level
// returns to NOT_ACTIVE and can be retried (§4.3, "order rejected" in §7).
func (l *Level) ResetOpenOrder() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openOrder = nil
}

// ResetCloseOrder clears a terminal, non-filled close order so the level
// falls back to OPEN_FILLED and a fresh close can be placed next tick.
func (l *Level) ResetCloseOrder() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeOrder = nil
}

// Reset clears both slots, returning the level to NOT_ACTIVE for reuse.
// Called on entry to COMPLETE, after the realized P&L has been logged.
func (l *Level) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openOrder = nil
	l.closeOrder = nil
}

// RealizedPnL computes the closed-trade profit for a COMPLETE level. LONG
// pays quote on open and receives it on close; SHORT is the reverse.
func (l *Level) RealizedPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openOrder == nil || l.closeOrder == nil {
		return decimal.Zero
	}
	fees := l.openOrder.CumFeesQuote.Add(l.closeOrder.CumFeesQuote)
	if l.Side == types.GridShort {
		// SHORT: open = sell (quote received), close = buy (quote paid).
		return l.openOrder.ExecutedAmountQuote.Sub(l.closeOrder.ExecutedAmountQuote).Sub(fees)
	}
	// LONG: open = buy (quote paid), close = sell (quote received).
	return l.closeOrder.ExecutedAmountQuote.Sub(l.openOrder.ExecutedAmountQuote).Sub(fees)
}
