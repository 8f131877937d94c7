// Package controller implements the Strategy Controller (§4.6): the
// supervisor that sequences startup and teardown across the long and short
// Grid Executors, validates balances, and runs the liveness loop that
// escalates to a coordinated stop on any violation.
//
// Grounded on internal/risk/manager.go (kill-signal channel with
// drain-on-full) and internal/engine/engine.go (Start/Stop/wg/ctx goroutine
// lifecycle), and on strategy_controller.py's start/stop sequencing,
// _monitor_loop, _heartbeat_check, and emergency_cleanup.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/internal/executor"
	"github.com/dualgrid/dualgrid/internal/metrics"
	"github.com/dualgrid/dualgrid/internal/venue"
	"github.com/dualgrid/dualgrid/pkg/types"
)

// HeartbeatWindow is the freshness bound for the event-stream heartbeat
// check (§4.6: "event-stream heartbeat fresh within 90 s").
const HeartbeatWindow = 90 * time.Second

// heartbeatCheckInterval is how often the supervisor loop runs its
// liveness pass, grounded on strategy_controller.py's per-second
// _monitor_loop tick.
const heartbeatCheckInterval = time.Second

// Status is a structured snapshot of both executors and the controller's
// own lifecycle, consumed by structured log lines and /healthz (§13.3),
// restored from strategy_controller.py's get_strategy_status.
type Status struct {
	Running bool
	Long    executor.Status
	Short   executor.Status
}

// Healthy reports whether both executors are in their normal running
// state, the condition /healthz reports as HTTP 200.
func (s Status) Healthy() bool {
	return s.Running && s.Long.IsHealthy() && s.Short.IsHealthy()
}

// Controller supervises the two Grid Executors sharing one instrument.
type Controller struct {
	venueA, venueB venue.Venue
	logger         *slog.Logger

	long, short *executor.Executor

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Controller over the two already-connected venue
// sessions, one per account. It does not start anything — call Start.
func New(venueA, venueB venue.Venue, logger *slog.Logger) *Controller {
	return &Controller{
		venueA: venueA,
		venueB: venueB,
		logger: logger.With("component", "controller"),
		done:   make(chan struct{}),
	}
}

// Done is closed once Stop has fully run, whether triggered by the caller
// (e.g. a SIGINT-derived context) or internally by the supervisor loop or
// an executor exhausting its retry budget (§7). cmd/run selects on this
// alongside its own signal context so a self-triggered stop still ends the
// process instead of leaving it serving /healthz against a dead strategy.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Start runs the full §4.6 startup sequence, failing fast on any step:
// connectivity verification, cleanup of both accounts, balance check,
// executor construction, concurrent executor start, and the supervisor
// loop. The ctx passed in governs the controller's entire lifetime; Start
// returns once the supervisor loop and both executors are running.
func (c *Controller) Start(ctx context.Context, longCfg, shortCfg types.ExecutorConfig) error {
	if !c.venueA.IsConnected(ctx) {
		return fmt.Errorf("controller: account A unreachable")
	}
	if !c.venueB.IsConnected(ctx) {
		return fmt.Errorf("controller: account B unreachable")
	}

	if err := c.Cleanup(ctx); err != nil {
		return fmt.Errorf("controller: startup cleanup: %w", err)
	}

	if err := c.validateBalance(ctx, longCfg, shortCfg); err != nil {
		return fmt.Errorf("controller: balance validation: %w", err)
	}

	long, err := executor.New(ctx, longCfg, c.venueA, c.logger)
	if err != nil {
		return fmt.Errorf("controller: build long executor: %w", err)
	}
	short, err := executor.New(ctx, shortCfg, c.venueB, c.logger)
	if err != nil {
		return fmt.Errorf("controller: build short executor: %w", err)
	}

	c.mu.Lock()
	c.long, c.short = long, short
	c.running = true
	c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.runExecutor("long", c.long)
	}()
	go func() {
		defer c.wg.Done()
		c.runExecutor("short", c.short)
	}()
	go func() {
		defer c.wg.Done()
		c.superviseLoop()
	}()

	c.logger.Info("strategy controller started")
	return nil
}

// runExecutor drives one executor's control loop for the controller's
// lifetime. If the loop returns (context cancellation or the executor's
// own retry budget exhausted, per executor.Run), the controller's stop
// sequence is triggered — mirroring strategy_controller.py's
// _run_executor_loop stopping the whole strategy on an executor error.
func (c *Controller) runExecutor(name string, e *executor.Executor) {
	if err := e.Run(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("executor loop exited with error", "executor", name, "error", err)
	}
	if c.ctx.Err() == nil {
		c.logger.Warn("executor loop ended, triggering controller stop", "executor", name)
		go c.Stop(context.Background())
	}
}

// validateBalance enforces §4.6's notional-capacity check for each account:
// balance × leverage ≥ total_amount_quote, taking the minimum nominal value
// across both accounts, per strategy_controller.py's
// validate_dual_account_balance.
func (c *Controller) validateBalance(ctx context.Context, longCfg, shortCfg types.ExecutorConfig) error {
	balanceA, err := c.venueA.Balance(ctx)
	if err != nil {
		return fmt.Errorf("account A balance: %w", err)
	}
	balanceB, err := c.venueB.Balance(ctx)
	if err != nil {
		return fmt.Errorf("account B balance: %w", err)
	}

	nominalA := balanceA.Mul(decimal.NewFromInt(int64(longCfg.Leverage)))
	nominalB := balanceB.Mul(decimal.NewFromInt(int64(shortCfg.Leverage)))

	minNominal := nominalA
	if nominalB.LessThan(minNominal) {
		minNominal = nominalB
	}

	required := longCfg.TotalAmountQuote
	if shortCfg.TotalAmountQuote.GreaterThan(required) {
		required = shortCfg.TotalAmountQuote
	}

	if minNominal.LessThan(required) {
		return fmt.Errorf("insufficient nominal value: min(A=%s, B=%s) < required %s",
			nominalA.String(), nominalB.String(), required.String())
	}
	return nil
}

// Cleanup runs cancel-all + close-all-positions on both accounts and
// verifies both are flat afterward. It is exposed separately from Start so
// cmd/cleanup can invoke the identical path as the one-shot binary (§12.2).
func (c *Controller) Cleanup(ctx context.Context) error {
	var wg sync.WaitGroup
	var errA, errB error

	wg.Add(2)
	go func() {
		defer wg.Done()
		errA = cleanupAccount(ctx, c.venueA)
	}()
	go func() {
		defer wg.Done()
		errB = cleanupAccount(ctx, c.venueB)
	}()
	wg.Wait()

	if errA != nil {
		c.logger.Error("account A cleanup failed", "error", errA)
	}
	if errB != nil {
		c.logger.Error("account B cleanup failed", "error", errB)
	}
	if errA != nil || errB != nil {
		return fmt.Errorf("cleanup failed: A=%v B=%v", errA, errB)
	}

	return c.verifyFlat(ctx)
}

func cleanupAccount(ctx context.Context, v venue.Venue) error {
	if _, err := v.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	if _, err := v.CloseAllPositions(ctx); err != nil {
		return fmt.Errorf("close all positions: %w", err)
	}
	return nil
}

// verifyFlat confirms both accounts carry no open orders and no position,
// per §4.6's final verify step and §7's "non-flat verification returns
// non-zero exit even if the in-memory state is clean."
func (c *Controller) verifyFlat(ctx context.Context) error {
	for name, v := range map[string]venue.Venue{"A": c.venueA, "B": c.venueB} {
		open, err := v.OpenOrders(ctx)
		if err != nil {
			return fmt.Errorf("account %s: list open orders: %w", name, err)
		}
		if len(open) > 0 {
			return fmt.Errorf("account %s: %d open orders remain after cleanup", name, len(open))
		}
		long, short, err := v.Positions(ctx)
		if err != nil {
			return fmt.Errorf("account %s: positions: %w", name, err)
		}
		if long.Sign() != 0 || short.Sign() != 0 {
			return fmt.Errorf("account %s: not flat (long=%s short=%s)", name, long.String(), short.String())
		}
	}
	return nil
}

// superviseLoop is the §4.6 liveness loop: every heartbeatCheckInterval it
// verifies event-stream freshness, executor retry counters, and venue
// reachability, escalating to Stop on the first violation. Grounded on
// strategy_controller.py's _monitor_loop / _heartbeat_check /
// _check_executor_health.
func (c *Controller) superviseLoop() {
	ticker := time.NewTicker(heartbeatCheckInterval)
	defer ticker.Stop()

	lastHeartbeat := time.Now()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			metrics.SetSupervisorHeartbeatAge(time.Since(lastHeartbeat).Seconds())
			if reason, unhealthy := c.checkLiveness(); unhealthy {
				c.logger.Error("liveness check failed, stopping strategy", "reason", reason)
				go c.Stop(context.Background())
				return
			}
			lastHeartbeat = time.Now()
		}
	}
}

func (c *Controller) checkLiveness() (string, bool) {
	if !c.venueA.IsConnected(c.ctx) {
		return "account A unreachable", true
	}
	if !c.venueB.IsConnected(c.ctx) {
		return "account B unreachable", true
	}
	if !c.venueA.StreamHealthy() {
		return "account A event stream stale", true
	}
	if !c.venueB.StreamHealthy() {
		return "account B event stream stale", true
	}

	c.mu.Lock()
	long, short := c.long, c.short
	c.mu.Unlock()

	if long != nil && long.State() == executor.StateShuttingDown {
		return "long executor shutting down", true
	}
	if short != nil && short.State() == executor.StateShuttingDown {
		return "short executor shutting down", true
	}
	return "", false
}

// Stop runs the §4.6 stop sequence exactly once: cancel executors' control
// tasks, run each executor's own shutdown, final cross-account cleanup,
// verify flat. If the orderly sequence itself errors, it falls through to
// an unconditional emergency cleanup before returning, per
// strategy_controller.py's stop()'s except branch — a secondary failure
// during shutdown never skips the safety net.
func (c *Controller) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		defer close(c.done)
		c.logger.Info("stopping strategy controller")

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()

		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		stopErr = c.shutdownExecutors(ctx)
		if stopErr == nil {
			stopErr = c.Cleanup(ctx)
		}

		if stopErr != nil {
			c.logger.Error("orderly stop failed, running emergency cleanup", "error", stopErr)
			if emErr := c.emergencyCleanup(ctx); emErr != nil {
				c.logger.Error("emergency cleanup failed", "error", emErr)
			}
		}

		c.logger.Info("strategy controller stopped")
	})
	return stopErr
}

func (c *Controller) shutdownExecutors(ctx context.Context) error {
	c.mu.Lock()
	long, short := c.long, c.short
	c.mu.Unlock()

	var errLong, errShort error
	var wg sync.WaitGroup
	if long != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errLong = long.Shutdown(ctx)
		}()
	}
	if short != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errShort = short.Shutdown(ctx)
		}()
	}
	wg.Wait()

	if errLong != nil {
		c.logger.Error("long executor shutdown failed", "error", errLong)
	}
	if errShort != nil {
		c.logger.Error("short executor shutdown failed", "error", errShort)
	}
	if errLong != nil || errShort != nil {
		return fmt.Errorf("executor shutdown failed: long=%v short=%v", errLong, errShort)
	}
	return nil
}

// emergencyCleanup is the unconditional best-effort fallback: force
// cancel-all and close-all on both accounts, ignoring individual errors,
// per strategy_controller.py's emergency_cleanup.
func (c *Controller) emergencyCleanup(ctx context.Context) error {
	var errs []error
	if _, err := c.venueA.CancelAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("account A cancel all: %w", err))
	}
	if _, err := c.venueA.CloseAllPositions(ctx); err != nil {
		errs = append(errs, fmt.Errorf("account A close all: %w", err))
	}
	if _, err := c.venueB.CancelAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("account B cancel all: %w", err))
	}
	if _, err := c.venueB.CloseAllPositions(ctx); err != nil {
		errs = append(errs, fmt.Errorf("account B close all: %w", err))
	}
	return errors.Join(errs...)
}

// Status returns a structured snapshot of both executors for /healthz and
// log lines, restored from strategy_controller.py's get_strategy_status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Status
	s.Running = c.running
	if c.long != nil {
		s.Long = c.long.Status()
	}
	if c.short != nil {
		s.Short = c.short.Status()
	}
	return s
}
