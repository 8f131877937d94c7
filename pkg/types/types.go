// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — order sides, grid
// configuration, instrument trading rules, and venue event payloads. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType enumerates the order types the Venue accepts.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// PositionAction tells the adapter whether an order opens or reduces a
// hedge-mode position, so it can set positionSide/reduce_only correctly.
type PositionAction string

const (
	PositionOpen  PositionAction = "OPEN"
	PositionClose PositionAction = "CLOSE"
)

// GridSide is the grid's directional bias. A LONG grid only ever buys to
// open and sells to close; a SHORT grid is the mirror image.
type GridSide string

const (
	GridLong  GridSide = "LONG"
	GridShort GridSide = "SHORT"
)

// OpenSide returns the side of the open order for this grid direction.
func (g GridSide) OpenSide() Side {
	if g == GridLong {
		return Buy
	}
	return Sell
}

// CloseSide returns the side of the take-profit order for this grid direction.
func (g GridSide) CloseSide() Side {
	return g.OpenSide().Opposite()
}

// ————————————————————————————————————————————————————————————————————————
// Instrument rules
// ————————————————————————————————————————————————————————————————————————

// InstrumentRules are the venue-discovered trading constraints for a pair.
// Immutable once discovered; re-discovery implies a fresh executor.
type InstrumentRules struct {
	Pair                   string
	MinPriceIncrement      decimal.Decimal
	MinBaseAmountIncrement decimal.Decimal
	MinNotional            decimal.Decimal
	MinOrderSize           decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// Executor configuration
// ————————————————————————————————————————————————————————————————————————

// ExecutorConfig is the immutable per-run configuration of one Grid Executor.
type ExecutorConfig struct {
	ID   string
	Pair string
	Side GridSide

	StartPrice decimal.Decimal
	EndPrice   decimal.Decimal

	TotalAmountQuote       decimal.Decimal
	MaxOpenOrders          int
	MinSpreadBetweenOrders decimal.Decimal
	MinOrderAmountQuote    decimal.Decimal

	TakeProfitPct   decimal.Decimal
	SafeExtraSpread decimal.Decimal

	// OrderFrequency is the minimum duration between consecutive open-order
	// placements. Zero means unlimited.
	OrderFrequency time.Duration

	// ActivationBounds is the fractional symmetric window around mid-price
	// outside which no orders are kept live. Nil means every level is
	// always eligible.
	ActivationBounds *decimal.Decimal

	// FeeAdjustmentPct reduces the close-order amount by this fraction of
	// the open fill when the venue charges fees in the base asset.
	// Defaults to zero (see spec Open Question (c)).
	FeeAdjustmentPct decimal.Decimal

	Leverage int

	UpdateInterval time.Duration
	MaxRetries     int
}

// Validate rejects configurations that violate §6.2's invariants.
func (c ExecutorConfig) Validate() error {
	switch {
	case c.Pair == "":
		return errPair
	case !c.StartPrice.LessThan(c.EndPrice):
		return errStartEnd
	case c.TotalAmountQuote.Sign() <= 0:
		return errTotalAmount
	case c.MaxOpenOrders < 1:
		return errMaxOpenOrders
	case c.TakeProfitPct.Sign() <= 0:
		return errTakeProfit
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Order placement
// ————————————————————————————————————————————————————————————————————————

// Candidate is an order the executor wants the Venue to place.
type Candidate struct {
	Pair           string
	Type           OrderType
	Side           Side
	Amount         decimal.Decimal
	Price          decimal.Decimal // zero for MARKET
	PositionAction PositionAction
	GridSide       GridSide
	ReduceOnly     bool
	ClientOrderID  string
}

// PlacedOrder is the Venue's acknowledgement of a successful placement.
type PlacedOrder struct {
	OrderID       string
	ClientOrderID string
}

// OrderSnapshot is a point-in-time view of an order's exchange-side state,
// shaped to accept either a REST poll response or a user-data stream event
// (§4.2) — callers populate whichever fields their source provides.
type OrderSnapshot struct {
	OrderID       string
	ClientOrderID string
	Status        string // raw venue status string, mapped by the tracker
	FilledBase    decimal.Decimal
	FilledQuote   decimal.Decimal
	FeeQuote      decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// Venue events
// ————————————————————————————————————————————————————————————————————————

// VenueEventKind distinguishes the asynchronous event-stream payloads a
// Venue implementation may push (§6.1).
type VenueEventKind int

const (
	EventOpenUpdate VenueEventKind = iota
	EventAccountUpdate
	EventStreamExpired
)

// VenueEvent is one message from a Venue's asynchronous event stream.
type VenueEvent struct {
	Kind  VenueEventKind
	Order OrderSnapshot   // populated for EventOpenUpdate
	Long  decimal.Decimal // populated for EventAccountUpdate
	Short decimal.Decimal // populated for EventAccountUpdate
}
