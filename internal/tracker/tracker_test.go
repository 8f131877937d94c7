package tracker

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/pkg/types"
)

func TestApply_RestSnapshotFillsOrder(t *testing.T) {
	t.Parallel()

	o := New("v1", "c1", types.Buy, decimal.RequireFromString("0.264"), decimal.RequireFromString("20"))
	o.Apply(types.OrderSnapshot{
		Status:      "FILLED",
		FilledBase:  decimal.RequireFromString("20"),
		FilledQuote: decimal.RequireFromString("5.28"),
		FeeQuote:    decimal.RequireFromString("0.005"),
	})

	if !o.IsFilled() {
		t.Error("expected order to be filled")
	}
	if !o.IsDone() {
		t.Error("expected a filled order to be done")
	}
}

func TestApply_PartialFillThenCancel(t *testing.T) {
	t.Parallel()

	o := New("v1", "c1", types.Buy, decimal.RequireFromString("0.264"), decimal.RequireFromString("100"))
	o.Apply(types.OrderSnapshot{Status: "PARTIALLY_FILLED", FilledBase: decimal.RequireFromString("40")})
	if !o.IsPartiallyFilled() {
		t.Error("expected partial fill")
	}

	o.Apply(types.OrderSnapshot{Status: "CANCELED", FilledBase: decimal.RequireFromString("40")})
	if o.IsFilled() {
		t.Error("a cancelled partially-filled order must not be considered filled")
	}
	if !o.IsDone() {
		t.Error("expected cancelled order to be done")
	}
}

func TestApply_MonotonicIgnoresUpdatesAfterDone(t *testing.T) {
	t.Parallel()

	o := New("v1", "c1", types.Buy, decimal.RequireFromString("0.264"), decimal.RequireFromString("20"))
	o.Apply(types.OrderSnapshot{Status: "FILLED", FilledBase: decimal.RequireFromString("20"), FeeQuote: decimal.RequireFromString("0.01")})

	// A stale update arriving after the order is already terminal must be ignored.
	o.Apply(types.OrderSnapshot{Status: "CANCELED", FilledBase: decimal.Zero, FeeQuote: decimal.Zero})

	if o.Status != "FILLED" {
		t.Errorf("expected status to remain FILLED, got %s", o.Status)
	}
	if !o.CumFeesQuote.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("expected fee to remain 0.01, got %s", o.CumFeesQuote)
	}
}

func TestApply_FeesOverwrittenNeverSummed(t *testing.T) {
	t.Parallel()

	o := New("v1", "c1", types.Buy, decimal.RequireFromString("0.264"), decimal.RequireFromString("20"))
	o.Apply(types.OrderSnapshot{Status: "PARTIALLY_FILLED", FilledBase: decimal.RequireFromString("10"), FeeQuote: decimal.RequireFromString("0.01")})
	o.Apply(types.OrderSnapshot{Status: "PARTIALLY_FILLED", FilledBase: decimal.RequireFromString("20"), FeeQuote: decimal.RequireFromString("0.02")})

	if !o.CumFeesQuote.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected cumulative fee to be overwritten to 0.02, got %s", o.CumFeesQuote)
	}
}
