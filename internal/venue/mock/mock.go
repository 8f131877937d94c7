// Package mock is an in-memory Venue (github.com/dualgrid/dualgrid/internal/venue)
// used by tests in internal/executor and internal/controller.
// It mirrors market.Book's mutex-protected-state idiom — every accessor
// takes the same lock the mutator does.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/internal/venue"
	"github.com/dualgrid/dualgrid/pkg/types"
)

// Venue is a fully in-process Venue implementation. Tests drive it directly
// (SetMidPrice, Fill, Cancel) to simulate exchange behavior deterministically.
type Venue struct {
	mu sync.Mutex

	mid   decimal.Decimal
	rules types.InstrumentRules

	orders    map[string]*types.OrderSnapshot
	long      decimal.Decimal
	short     decimal.Decimal
	balance   decimal.Decimal
	connected bool
	streamOK  bool

	nextOrderID int
	events      chan types.VenueEvent
}

// New builds a mock Venue seeded with the given mid-price and trading rules.
func New(mid decimal.Decimal, rules types.InstrumentRules) *Venue {
	return &Venue{
		mid:       mid,
		rules:     rules,
		orders:    make(map[string]*types.OrderSnapshot),
		balance:   decimal.NewFromInt(1_000_000),
		connected: true,
		streamOK:  true,
		events:    make(chan types.VenueEvent, 256),
	}
}

var _ venue.Venue = (*Venue)(nil)

func (m *Venue) MidPrice(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mid, nil
}

// SetMidPrice moves the simulated mid-price, as a test driver would after
// simulating market movement.
func (m *Venue) SetMidPrice(p decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mid = p
}

func (m *Venue) Positions(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.long, m.short, nil
}

func (m *Venue) OpenOrders(ctx context.Context) ([]types.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.OrderSnapshot, 0, len(m.orders))
	for _, o := range m.orders {
		if !isDone(o.Status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *Venue) OrderStatus(ctx context.Context, orderID string) (types.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return types.OrderSnapshot{}, fmt.Errorf("mock venue: unknown order %s", orderID)
	}
	return *o, nil
}

func (m *Venue) OrderStatusBulk(ctx context.Context, orderIDs []string) ([]types.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.OrderSnapshot, 0, len(orderIDs))
	for _, id := range orderIDs {
		if o, ok := m.orders[id]; ok {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *Venue) PlaceOrder(ctx context.Context, c types.Candidate) (types.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrderID++
	id := fmt.Sprintf("mock-%d", m.nextOrderID)
	clientID := c.ClientOrderID
	if clientID == "" {
		clientID = id
	}
	m.orders[id] = &types.OrderSnapshot{
		OrderID:       id,
		ClientOrderID: clientID,
		Status:        "NEW",
	}
	return types.PlacedOrder{OrderID: id, ClientOrderID: clientID}, nil
}

func (m *Venue) Cancel(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	if !isDone(o.Status) {
		o.Status = "CANCELED"
	}
	return true, nil
}

func (m *Venue) CancelAll(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if !isDone(o.Status) {
			o.Status = "CANCELED"
		}
	}
	return true, nil
}

func (m *Venue) CloseAllPositions(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.long = decimal.Zero
	m.short = decimal.Zero
	return true, nil
}

func (m *Venue) TradingRules(ctx context.Context) (types.InstrumentRules, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules, nil
}

func (m *Venue) IsConnected(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Venue) StreamHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamOK
}

// SetConnected lets a test simulate a persistent-venue failure.
func (m *Venue) SetConnected(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = ok
}

// SetStreamHealthy lets a test simulate a stale event-stream heartbeat.
func (m *Venue) SetStreamHealthy(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamOK = ok
}

func (m *Venue) Events() <-chan types.VenueEvent { return m.events }

func (m *Venue) TransferFunds(ctx context.Context, toAccount string, amount decimal.Decimal) error {
	return venue.ErrNotImplemented
}

func (m *Venue) Balance(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// SetBalance lets a test configure the account's available balance for
// §4.6 balance-check scenarios.
func (m *Venue) SetBalance(b decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = b
}

// Fill simulates a (partial) fill on an order and pushes the corresponding
// event onto the stream, exactly as a real user-data push would.
func (m *Venue) Fill(orderID string, filledBase, filledQuote, fee decimal.Decimal, full bool) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return
	}
	o.FilledBase = filledBase
	o.FilledQuote = filledQuote
	o.FeeQuote = fee
	if full {
		o.Status = "FILLED"
	}
	snap := *o
	m.mu.Unlock()
	m.events <- types.VenueEvent{Kind: types.EventOpenUpdate, Order: snap}
}

func isDone(status string) bool {
	switch status {
	case "FILLED", "CLOSED", "CANCELED", "EXPIRED", "REJECTED":
		return true
	default:
		return false
	}
}
