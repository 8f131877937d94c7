// Package executor implements the Grid Executor control loop (§4.4): a
// per-account state machine that ticks on a fixed interval, refreshing order
// state, re-deriving level states, and deciding which orders to place or
// cancel. Ported from grid_executor.py's control_task and its
// get_*_to_create/get_*_to_cancel/adjust_and_place_* helpers, with the
// tick-loop shape (refresh → re-derive → decide → act) adapted from
// internal/strategy/maker.go's Run/quoteUpdate/reconcileOrders.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/internal/ladder"
	"github.com/dualgrid/dualgrid/internal/level"
	"github.com/dualgrid/dualgrid/internal/metrics"
	"github.com/dualgrid/dualgrid/internal/tracker"
	"github.com/dualgrid/dualgrid/internal/venue"
	"github.com/dualgrid/dualgrid/pkg/types"
)

// State is the executor's own lifecycle state, distinct from a level's
// State (internal/level) — this tracks whether the control loop keeps
// ticking at all (§7: max_retries consecutive failures).
type State int

const (
	StateRunning State = iota
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNKNOWN"
	}
}

var allStates = []string{StateRunning.String(), StateShuttingDown.String()}

// Status is a structured snapshot of one executor, consumed by both
// structured log lines and the /healthz endpoint (§12.3).
type Status struct {
	ID            string
	Side          types.GridSide
	State         string
	RetryCount    int
	NotActive     int
	OpenPlaced    int
	OpenFilled    int
	ClosePlaced   int
	LongPosition  decimal.Decimal
	ShortPosition decimal.Decimal
	LastTickAt    time.Time
}

// IsHealthy reports whether the executor is still ticking normally.
func (s Status) IsHealthy() bool { return s.State == StateRunning.String() }

// Executor is one account's Grid Executor: a fixed ladder of levels, driven
// by a periodic tick against one Venue session (§3 ownership: the Venue
// session is exclusive to its owning executor).
type Executor struct {
	id     string
	cfg    types.ExecutorConfig
	rules  types.InstrumentRules
	venue  venue.Venue
	logger *slog.Logger

	levels []*level.Level

	mu               sync.Mutex
	longPosition     decimal.Decimal
	shortPosition    decimal.Decimal
	lastOpenPlacedAt time.Time
	retryCount       int
	state            State
	lastTickAt       time.Time

	pendingMu sync.Mutex
	pending   []types.VenueEvent
}

// New builds the executor's fixed ladder (§4.1) against the venue's current
// trading rules and mid-price, and returns it ready to Run. The ladder is
// fixed for the executor's lifetime — rebuilding implies a restart.
func New(ctx context.Context, cfg types.ExecutorConfig, v venue.Venue, logger *slog.Logger) (*Executor, error) {
	rules, err := v.TradingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor %s: trading rules: %w", cfg.ID, err)
	}
	mid, err := v.MidPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor %s: mid price: %w", cfg.ID, err)
	}
	built, err := ladder.Build(cfg, rules, mid)
	if err != nil {
		return nil, fmt.Errorf("executor %s: build ladder: %w", cfg.ID, err)
	}

	levels := make([]*level.Level, len(built))
	for i, l := range built {
		levels[i] = level.New(l.ID, l.Price, l.AmountQuote, l.Side, l.TakeProfitPct)
	}

	return &Executor{
		id:     cfg.ID,
		cfg:    cfg,
		rules:  rules,
		venue:  v,
		logger: logger.With("executor", cfg.ID, "side", string(cfg.Side)),
		levels: levels,
		state:  StateRunning,
	}, nil
}

// Run ticks the control loop until ctx is cancelled or the executor's own
// retry budget (§7) is exhausted, transitioning it to SHUTTING_DOWN. The
// event-ingress task (component G) runs concurrently, draining the venue's
// asynchronous event stream so fills observed mid-tick are visible no
// later than the next tick (§5 ordering guarantee).
func (e *Executor) Run(ctx context.Context) error {
	go e.ingestEvents(ctx)

	interval := e.cfg.UpdateInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := e.tick(ctx); err != nil {
				e.logger.Error("tick failed", "error", err)
				e.recordFailure()
			} else {
				e.recordSuccess()
			}
			metrics.ObserveTick(e.id, time.Since(start).Seconds())
			metrics.SetRetryCount(e.id, e.RetryCount())
			metrics.SetExecutorState(e.id, allStates, e.State().String())

			if e.State() == StateShuttingDown {
				e.logger.Error("max retries exceeded, executor shutting down", "max_retries", e.cfg.MaxRetries)
				return nil
			}
		}
	}
}

// tick runs one pass of §4.4's five steps, in strict order. Pending
// event-stream updates are drained first, so a fill observed between ticks
// is applied before the refresh poll and every subsequent step sees it.
func (e *Executor) tick(ctx context.Context) error {
	e.drainPendingEvents()

	// 1. Refresh.
	ids := e.collectLiveOrderIDs()
	if len(ids) > 0 {
		snaps, err := e.venue.OrderStatusBulk(ctx, ids)
		if err != nil {
			return fmt.Errorf("refresh orders: %w", err)
		}
		e.applySnapshots(snaps)
	}

	// 2. Re-derive states and bucket.
	buckets := e.reconcileLevels()

	// 3. Update position mirror.
	long, short, err := e.venue.Positions(ctx)
	if err != nil {
		return fmt.Errorf("refresh positions: %w", err)
	}
	e.mu.Lock()
	e.longPosition, e.shortPosition = long, short
	e.lastTickAt = time.Now()
	e.mu.Unlock()

	mid, err := e.venue.MidPrice(ctx)
	if err != nil {
		return fmt.Errorf("refresh mid price: %w", err)
	}

	// 4. Decide.
	d := e.decide(buckets, mid)

	// 5. Act.
	e.act(ctx, d, mid)

	return nil
}

type levelBuckets struct {
	notActive   []*level.Level
	openPlaced  []*level.Level
	openFilled  []*level.Level
	closePlaced []*level.Level
}

// ingestEvents drains the venue's asynchronous user-data stream between
// ticks (component G) into a pending queue of its own, guarded by pendingMu
// — a lock distinct from e.mu, which ingestEvents never takes.
// tick applies the queued events at the start of its next pass (§5: "events
// never overlap with decisions for the same executor"), so Tracked Order
// and level state are only ever mutated from the one control-loop goroutine.
func (e *Executor) ingestEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-e.venue.Events():
			if !ok {
				return
			}
			e.pendingMu.Lock()
			e.pending = append(e.pending, evt)
			e.pendingMu.Unlock()
		}
	}
}

// drainPendingEvents applies every event queued by ingestEvents since the
// last tick, in arrival order.
func (e *Executor) drainPendingEvents() {
	e.pendingMu.Lock()
	events := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	for _, evt := range events {
		e.applyEvent(evt)
	}
}

func (e *Executor) applyEvent(evt types.VenueEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch evt.Kind {
	case types.EventOpenUpdate:
		matched := false
		for _, l := range e.levels {
			if oo := l.OpenOrder(); oo != nil && oo.OrderID == evt.Order.OrderID {
				wasFilled := oo.IsFilled()
				oo.Apply(evt.Order)
				if !wasFilled && oo.IsFilled() {
					metrics.IncOrdersFilled(e.id, "open")
				}
				matched = true
				break
			}
			if co := l.CloseOrder(); co != nil && co.OrderID == evt.Order.OrderID {
				wasFilled := co.IsFilled()
				co.Apply(evt.Order)
				if !wasFilled && co.IsFilled() {
					metrics.IncOrdersFilled(e.id, "close")
				}
				matched = true
				break
			}
		}
		if !matched {
			// §7 State reconciliation: an event for an order no level
			// recognizes. Logged and ignored — may be residual from a
			// prior run.
			e.logger.Debug("order event matched no level, ignoring", "order_id", evt.Order.OrderID, "client_order_id", evt.Order.ClientOrderID)
		}
	case types.EventAccountUpdate:
		e.longPosition, e.shortPosition = evt.Long, evt.Short
	case types.EventStreamExpired:
		e.logger.Warn("venue event stream expired")
	}
}

// reconcileLevels re-derives every level's state (§4.3) and applies the
// transitions the table implies as side effects: clearing a done-not-filled
// open or close slot, and resetting a COMPLETE level after logging its
// realized P&L.
func (e *Executor) reconcileLevels() levelBuckets {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b levelBuckets
	for _, l := range e.levels {
		st := l.State()
		switch st {
		case level.NotActive:
			if l.OpenOrder() != nil {
				l.ResetOpenOrder()
			}
		case level.OpenFilled:
			if l.CloseOrder() != nil {
				l.ResetCloseOrder()
			}
		case level.Complete:
			pnl := l.RealizedPnL()
			e.logger.Info("level complete", "level", l.ID, "price", l.Price.String(), "realized_pnl", pnl.String())
			l.Reset()
			st = level.NotActive
		}

		switch st {
		case level.NotActive:
			b.notActive = append(b.notActive, l)
		case level.OpenPlaced:
			b.openPlaced = append(b.openPlaced, l)
		case level.OpenFilled:
			b.openFilled = append(b.openFilled, l)
		case level.ClosePlaced:
			b.closePlaced = append(b.closePlaced, l)
		}
	}
	return b
}

type decision struct {
	opensToPlace   []*level.Level
	closesToPlace  []*level.Level
	opensToCancel  []*level.Level
	closesToCancel []*level.Level
}

// decide produces the four disjoint lists of §4.4 step 4.
func (e *Executor) decide(b levelBuckets, mid decimal.Decimal) decision {
	var d decision

	for _, l := range b.openPlaced {
		oo := l.OpenOrder()
		if oo == nil {
			continue
		}
		if !withinActivationBounds(oo.Price, mid, e.cfg.ActivationBounds) {
			d.opensToCancel = append(d.opensToCancel, l)
		}
	}

	for _, l := range b.closePlaced {
		co := l.CloseOrder()
		if co == nil {
			continue
		}
		if !withinActivationBounds(co.Price, mid, e.cfg.ActivationBounds) {
			d.closesToCancel = append(d.closesToCancel, l)
		}
	}

	for _, l := range b.openFilled {
		oo := l.OpenOrder()
		if oo == nil {
			continue
		}
		tp := takeProfitPrice(e.cfg, openFillPrice(oo, l.Price), mid)
		if withinActivationBounds(tp, mid, e.cfg.ActivationBounds) {
			d.closesToPlace = append(d.closesToPlace, l)
		}
	}

	eligible := make([]*level.Level, 0, len(b.notActive))
	for _, l := range b.notActive {
		if withinActivationBounds(l.Price, mid, e.cfg.ActivationBounds) {
			eligible = append(eligible, l)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		di := eligible[i].Price.Sub(mid).Abs()
		dj := eligible[j].Price.Sub(mid).Abs()
		return di.LessThan(dj)
	})

	e.mu.Lock()
	lastPlaced := e.lastOpenPlacedAt
	e.mu.Unlock()
	throttled := e.cfg.OrderFrequency > 0 && !lastPlaced.IsZero() && time.Since(lastPlaced) < e.cfg.OrderFrequency

	if !throttled {
		capacity := e.cfg.MaxOpenOrders - len(b.openPlaced)
		if capacity > 0 {
			if capacity < len(eligible) {
				eligible = eligible[:capacity]
			}
			d.opensToPlace = eligible
		}
	}

	return d
}

// act issues the places and cancels decided above. Each is independently
// wrapped (§7): a failure on one order never prevents the rest of the tick
// from being processed. Close-cancels and open-cancels go first (latency
// sensitive, unthrottled), then close-places, then open-places — re-checking
// the capacity cap before each placement (§4.4).
func (e *Executor) act(ctx context.Context, d decision, mid decimal.Decimal) {
	for _, l := range d.closesToCancel {
		e.cancelClose(ctx, l)
	}
	for _, l := range d.opensToCancel {
		e.cancelOpen(ctx, l)
	}
	for _, l := range d.closesToPlace {
		e.placeClose(ctx, l, mid)
	}

	current := e.countState(level.OpenPlaced)
	for _, l := range d.opensToPlace {
		if current >= e.cfg.MaxOpenOrders {
			break
		}
		if e.placeOpen(ctx, l, mid) {
			current++
		}
	}
}

func (e *Executor) cancelOpen(ctx context.Context, l *level.Level) {
	oo := l.OpenOrder()
	if oo == nil {
		return
	}
	if _, err := e.venue.Cancel(ctx, oo.OrderID); err != nil {
		e.logger.Warn("cancel open order failed", "level", l.ID, "order_id", oo.OrderID, "error", err, "kind", venue.KindOf(err))
		return
	}
	metrics.IncOrdersCancelled(e.id, "open")
}

func (e *Executor) cancelClose(ctx context.Context, l *level.Level) {
	co := l.CloseOrder()
	if co == nil {
		return
	}
	if _, err := e.venue.Cancel(ctx, co.OrderID); err != nil {
		e.logger.Warn("cancel close order failed", "level", l.ID, "order_id", co.OrderID, "error", err, "kind", venue.KindOf(err))
		return
	}
	metrics.IncOrdersCancelled(e.id, "close")
}

func (e *Executor) placeClose(ctx context.Context, l *level.Level, mid decimal.Decimal) {
	oo := l.OpenOrder()
	if oo == nil {
		return
	}
	amount, ok := closeAmount(e.cfg, e.rules, oo.ExecutedAmountBase)
	if !ok {
		e.logger.Debug("close amount below venue minimum, retrying next tick", "level", l.ID)
		return
	}
	tp := takeProfitPrice(e.cfg, openFillPrice(oo, l.Price), mid)
	price := quantizeClosePrice(e.cfg.Side, tp, e.rules.MinPriceIncrement)

	candidate := types.Candidate{
		Pair:           e.cfg.Pair,
		Type:           types.OrderTypeLimit,
		Side:           e.cfg.Side.CloseSide(),
		Amount:         amount,
		Price:          price,
		PositionAction: types.PositionClose,
		GridSide:       e.cfg.Side,
		ReduceOnly:     true,
	}
	placed, err := e.venue.PlaceOrder(ctx, candidate)
	if err != nil {
		e.logger.Warn("place close order failed", "level", l.ID, "error", err, "kind", venue.KindOf(err))
		return
	}
	l.AttachCloseOrder(tracker.New(placed.OrderID, placed.ClientOrderID, candidate.Side, price, amount))
	metrics.IncOrdersPlaced(e.id, "close")
}

func (e *Executor) placeOpen(ctx context.Context, l *level.Level, mid decimal.Decimal) bool {
	price := quantizeOpenPrice(l.Price, e.rules.MinPriceIncrement)
	amount := types.QuantizeDown(l.AmountQuote.Div(price), e.rules.MinBaseAmountIncrement)
	if amount.LessThan(e.rules.MinOrderSize) || amount.Mul(price).LessThan(e.rules.MinNotional) {
		e.logger.Debug("open amount below venue minimum, skipping level", "level", l.ID)
		return false
	}

	candidate := types.Candidate{
		Pair:           e.cfg.Pair,
		Type:           types.OrderTypeLimit,
		Side:           e.cfg.Side.OpenSide(),
		Amount:         amount,
		Price:          price,
		PositionAction: types.PositionOpen,
		GridSide:       e.cfg.Side,
		ReduceOnly:     false,
	}
	placed, err := e.venue.PlaceOrder(ctx, candidate)
	if err != nil {
		e.logger.Warn("place open order failed", "level", l.ID, "error", err, "kind", venue.KindOf(err))
		return false
	}

	now := time.Now()
	l.AttachOpenOrder(tracker.New(placed.OrderID, placed.ClientOrderID, candidate.Side, price, amount), now.Unix())
	e.mu.Lock()
	e.lastOpenPlacedAt = now
	e.mu.Unlock()
	metrics.IncOrdersPlaced(e.id, "open")
	return true
}

// Shutdown cancels every order and flattens every position on this
// executor's venue session (§4.6 stop sequence, per-executor half).
func (e *Executor) Shutdown(ctx context.Context) error {
	if _, err := e.venue.CancelAll(ctx); err != nil {
		return fmt.Errorf("executor %s: cancel all: %w", e.id, err)
	}
	if _, err := e.venue.CloseAllPositions(ctx); err != nil {
		return fmt.Errorf("executor %s: close all positions: %w", e.id, err)
	}
	return nil
}

// Status returns a structured snapshot for health/metrics consumers (§12.3).
func (e *Executor) Status() Status {
	e.mu.Lock()
	s := Status{
		ID:            e.id,
		Side:          e.cfg.Side,
		State:         e.state.String(),
		RetryCount:    e.retryCount,
		LongPosition:  e.longPosition,
		ShortPosition: e.shortPosition,
		LastTickAt:    e.lastTickAt,
	}
	e.mu.Unlock()

	for _, l := range e.levels {
		switch l.State() {
		case level.NotActive:
			s.NotActive++
		case level.OpenPlaced:
			s.OpenPlaced++
		case level.OpenFilled:
			s.OpenFilled++
		case level.ClosePlaced:
			s.ClosePlaced++
		}
	}
	return s
}

// State reports the executor's own lifecycle state (not a level's state).
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RetryCount reports the executor's current consecutive-tick-failure count.
func (e *Executor) RetryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryCount
}

func (e *Executor) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retryCount++
	if e.cfg.MaxRetries > 0 && e.retryCount >= e.cfg.MaxRetries {
		e.state = StateShuttingDown
	}
}

func (e *Executor) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retryCount = 0
}

func (e *Executor) countState(target level.State) int {
	n := 0
	for _, l := range e.levels {
		if l.State() == target {
			n++
		}
	}
	return n
}

func (e *Executor) collectLiveOrderIDs() []string {
	ids := make([]string, 0, len(e.levels)*2)
	for _, l := range e.levels {
		if oo := l.OpenOrder(); oo != nil && !oo.IsDone() {
			ids = append(ids, oo.OrderID)
		}
		if co := l.CloseOrder(); co != nil && !co.IsDone() {
			ids = append(ids, co.OrderID)
		}
	}
	return ids
}

// applySnapshots is called from tick() (step 1), on the same goroutine that
// applies queued events through applyEvent; ingestEvents never touches
// tracker.Order fields. It takes e.mu, as applyEvent does, because Status
// and State read executor fields under that lock from other goroutines.
func (e *Executor) applySnapshots(snaps []types.OrderSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	byID := make(map[string]types.OrderSnapshot, len(snaps))
	for _, s := range snaps {
		byID[s.OrderID] = s
	}

	for _, l := range e.levels {
		if oo := l.OpenOrder(); oo != nil {
			if snap, ok := byID[oo.OrderID]; ok {
				wasFilled := oo.IsFilled()
				oo.Apply(snap)
				if !wasFilled && oo.IsFilled() {
					metrics.IncOrdersFilled(e.id, "open")
				}
			}
		}
		if co := l.CloseOrder(); co != nil {
			if snap, ok := byID[co.OrderID]; ok {
				wasFilled := co.IsFilled()
				co.Apply(snap)
				if !wasFilled && co.IsFilled() {
					metrics.IncOrdersFilled(e.id, "close")
				}
			}
		}
	}
}

// openFillPrice returns the open order's average fill price, falling back
// to the level's ladder price if the order hasn't recorded an executed
// amount yet (defensive — OPEN_FILLED implies it has).
func openFillPrice(o *tracker.Order, fallback decimal.Decimal) decimal.Decimal {
	if o.ExecutedAmountBase.Sign() <= 0 {
		return fallback
	}
	return o.ExecutedAmountQuote.Div(o.ExecutedAmountBase)
}
