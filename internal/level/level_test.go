package level

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/internal/tracker"
	"github.com/dualgrid/dualgrid/pkg/types"
)

func newLevel() *Level {
	return New("L0", decimal.RequireFromString("0.264"), decimal.RequireFromString("20"), types.GridLong, decimal.RequireFromString("0.001"))
}

func TestState_StartsNotActive(t *testing.T) {
	t.Parallel()

	l := newLevel()
	if got := l.State(); got != NotActive {
		t.Errorf("fresh level state = %s, want NOT_ACTIVE", got)
	}
}

func TestState_OpenPlacedWhileOrderLive(t *testing.T) {
	t.Parallel()

	l := newLevel()
	o := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(o, 0)

	if got := l.State(); got != OpenPlaced {
		t.Errorf("state = %s, want OPEN_PLACED", got)
	}
}

func TestState_OpenFilledAfterOpenFills(t *testing.T) {
	t.Parallel()

	l := newLevel()
	o := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(o, 0)
	o.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20")})

	if got := l.State(); got != OpenFilled {
		t.Errorf("state = %s, want OPEN_FILLED", got)
	}
}

func TestState_RejectedOpenReturnsToNotActive(t *testing.T) {
	t.Parallel()

	l := newLevel()
	o := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(o, 0)
	o.Apply(types.OrderSnapshot{Status: "REJECTED"})

	if got := l.State(); got != NotActive {
		t.Errorf("state = %s, want NOT_ACTIVE for rejected-but-not-reset open order", got)
	}

	l.ResetOpenOrder()
	if l.OpenOrder() != nil {
		t.Error("expected open order slot cleared after ResetOpenOrder")
	}
}

func TestState_ClosePlacedThenComplete(t *testing.T) {
	t.Parallel()

	l := newLevel()
	open := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(open, 0)
	open.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FilledQuote: decimal.RequireFromString("5.28")})

	close := tracker.New("v2", "c2", types.Sell, l.Price, l.AmountQuote)
	l.AttachCloseOrder(close)
	if got := l.State(); got != ClosePlaced {
		t.Errorf("state = %s, want CLOSE_PLACED", got)
	}

	close.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FilledQuote: decimal.RequireFromString("5.30")})
	if got := l.State(); got != Complete {
		t.Errorf("state = %s, want COMPLETE", got)
	}
}

func TestState_RejectedCloseFallsBackToOpenFilled(t *testing.T) {
	t.Parallel()

	l := newLevel()
	open := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(open, 0)
	open.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20")})

	close := tracker.New("v2", "c2", types.Sell, l.Price, l.AmountQuote)
	l.AttachCloseOrder(close)
	close.Apply(types.OrderSnapshot{Status: "CANCELED"})

	if got := l.State(); got != OpenFilled {
		t.Errorf("state = %s, want OPEN_FILLED for rejected-but-not-reset close", got)
	}

	l.ResetCloseOrder()
	if got := l.State(); got != OpenFilled {
		t.Errorf("state after ResetCloseOrder = %s, want OPEN_FILLED", got)
	}
	if l.CloseOrder() != nil {
		t.Error("expected close order slot cleared after ResetCloseOrder")
	}
}

func TestReset_ReturnsCompleteLevelToNotActive(t *testing.T) {
	t.Parallel()

	l := newLevel()
	open := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(open, 0)
	open.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20")})
	close := tracker.New("v2", "c2", types.Sell, l.Price, l.AmountQuote)
	l.AttachCloseOrder(close)
	close.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20")})

	l.Reset()
	if got := l.State(); got != NotActive {
		t.Errorf("state after Reset = %s, want NOT_ACTIVE", got)
	}
}

func TestRealizedPnL_LongProfitsWhenCloseQuoteExceedsOpen(t *testing.T) {
	t.Parallel()

	l := newLevel()
	open := tracker.New("v1", "c1", types.Buy, l.Price, l.AmountQuote)
	l.AttachOpenOrder(open, 0)
	open.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FilledQuote: decimal.RequireFromString("5.00"), FeeQuote: decimal.RequireFromString("0.01")})

	close := tracker.New("v2", "c2", types.Sell, l.Price, l.AmountQuote)
	l.AttachCloseOrder(close)
	close.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FilledQuote: decimal.RequireFromString("5.10"), FeeQuote: decimal.RequireFromString("0.01")})

	want := decimal.RequireFromString("0.08") // 5.10 - 5.00 - 0.01 - 0.01
	if got := l.RealizedPnL(); !got.Equal(want) {
		t.Errorf("RealizedPnL = %s, want %s", got, want)
	}
}

func TestRealizedPnL_ShortProfitsWhenOpenQuoteExceedsClose(t *testing.T) {
	t.Parallel()

	l := New("L0", decimal.RequireFromString("0.264"), decimal.RequireFromString("20"), types.GridShort, decimal.RequireFromString("0.001"))
	open := tracker.New("v1", "c1", types.Sell, l.Price, l.AmountQuote)
	l.AttachOpenOrder(open, 0)
	open.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FilledQuote: decimal.RequireFromString("5.10"), FeeQuote: decimal.RequireFromString("0.01")})

	close := tracker.New("v2", "c2", types.Buy, l.Price, l.AmountQuote)
	l.AttachCloseOrder(close)
	close.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FilledQuote: decimal.RequireFromString("5.00"), FeeQuote: decimal.RequireFromString("0.01")})

	want := decimal.RequireFromString("0.08") // 5.10 - 5.00 - 0.01 - 0.01
	if got := l.RealizedPnL(); !got.Equal(want) {
		t.Errorf("RealizedPnL = %s, want %s", got, want)
	}
}
