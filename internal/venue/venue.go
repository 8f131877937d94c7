// Package venue defines the capability interface the core trades through
// (§6.1) and the shared error taxonomy (§7) every implementation maps its
// failures onto. Two implementations exist: internal/venue/live (a real
// REST+WebSocket adapter) and internal/venue/mock (an in-memory double used
// by tests in internal/executor and internal/controller).
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/pkg/types"
)

// Venue is every capability the core consumes from an exchange connector.
// No inheritance, composition only: a live adapter and an in-memory mock
// both satisfy this single interface (§9 design note).
type Venue interface {
	// MidPrice returns (best_bid+best_ask)/2, or last-traded as fallback.
	MidPrice(ctx context.Context) (decimal.Decimal, error)

	// Positions returns the account's long and short position sizes in base units.
	Positions(ctx context.Context) (long, short decimal.Decimal, err error)

	OpenOrders(ctx context.Context) ([]types.OrderSnapshot, error)
	OrderStatus(ctx context.Context, orderID string) (types.OrderSnapshot, error)
	OrderStatusBulk(ctx context.Context, orderIDs []string) ([]types.OrderSnapshot, error)

	PlaceOrder(ctx context.Context, candidate types.Candidate) (types.PlacedOrder, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	CancelAll(ctx context.Context) (bool, error)
	CloseAllPositions(ctx context.Context) (bool, error)

	TradingRules(ctx context.Context) (types.InstrumentRules, error)

	// IsConnected reports REST reachability (a ping), distinct from
	// StreamHealthy's WebSocket heartbeat check — see Open Question (a).
	IsConnected(ctx context.Context) bool

	// StreamHealthy reports whether the user-data event stream has
	// received a message within its heartbeat window.
	StreamHealthy() bool

	// Events is the asynchronous user-data stream (§6.1). Neither the live
	// nor the mock adapter closes the channel when the session shuts down.
	Events() <-chan types.VenueEvent

	// TransferFunds moves quote balance to another account. Unimplemented
	// on every adapter — see Open Question (b); kept on the interface so a
	// future adapter can support it without a signature change.
	TransferFunds(ctx context.Context, toAccount string, amount decimal.Decimal) error

	// Balance returns the account's available quote balance.
	Balance(ctx context.Context) (decimal.Decimal, error)
}
