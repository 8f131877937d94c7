package ladder

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dualgrid/dualgrid/pkg/types"
)

func rules() types.InstrumentRules {
	return types.InstrumentRules{
		Pair:                   "TESTUSDT",
		MinPriceIncrement:      decimal.RequireFromString("0.00001"),
		MinBaseAmountIncrement: decimal.RequireFromString("1"),
		MinNotional:            decimal.RequireFromString("5"),
		MinOrderSize:           decimal.RequireFromString("1"),
	}
}

func baseConfig() types.ExecutorConfig {
	return types.ExecutorConfig{
		Pair:                   "TESTUSDT",
		Side:                   types.GridLong,
		StartPrice:             decimal.RequireFromString("0.248"),
		EndPrice:               decimal.RequireFromString("0.280"),
		TotalAmountQuote:       decimal.RequireFromString("1000"),
		MaxOpenOrders:          5,
		MinSpreadBetweenOrders: decimal.RequireFromString("0.0005"),
		TakeProfitPct:          decimal.RequireFromString("0.001"),
		SafeExtraSpread:        decimal.RequireFromString("0.0001"),
	}
}

func TestBuild_ReturnsAtLeastOneLevel(t *testing.T) {
	t.Parallel()

	levels, err := Build(baseConfig(), rules(), decimal.RequireFromString("0.264"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(levels) < 1 {
		t.Fatalf("expected at least one level, got %d", len(levels))
	}
	for _, l := range levels {
		if !l.Price.GreaterThanOrEqual(baseConfig().StartPrice) || !l.Price.LessThanOrEqual(baseConfig().EndPrice) {
			t.Errorf("level %s price %s out of range", l.ID, l.Price)
		}
	}
}

func TestBuild_LinearSpacing(t *testing.T) {
	t.Parallel()

	levels, err := Build(baseConfig(), rules(), decimal.RequireFromString("0.264"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(levels) < 3 {
		t.Fatalf("expected multiple levels for this spacing test, got %d", len(levels))
	}
	step := levels[1].Price.Sub(levels[0].Price)
	for i := 1; i < len(levels); i++ {
		got := levels[i].Price.Sub(levels[i-1].Price)
		if !got.Sub(step).Abs().LessThan(decimal.RequireFromString("0.0000001")) {
			t.Errorf("level %d step %s != expected step %s", i, got, step)
		}
	}
}

func TestBuild_SingleLevelAtMidpointWhenBudgetTiny(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	// Budget just barely above the minimum-notional floor forces N=1.
	cfg.TotalAmountQuote = decimal.RequireFromString("5.5")

	levels, err := Build(cfg, rules(), decimal.RequireFromString("0.264"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected exactly one level when budget is below Q_min capacity, got %d", len(levels))
	}
	wantMid := cfg.StartPrice.Add(cfg.EndPrice).Div(decimal.NewFromInt(2))
	if !levels[0].Price.Equal(wantMid) {
		t.Errorf("single level price = %s, want range midpoint %s", levels[0].Price, wantMid)
	}
}

func TestBuild_PerLevelAmountRespectsBudget(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	levels, err := Build(cfg, rules(), decimal.RequireFromString("0.264"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	n := decimal.NewFromInt(int64(len(levels)))
	total := levels[0].AmountQuote.Mul(n)
	marginBudget := cfg.TotalAmountQuote.Mul(safetyMargin)
	if total.GreaterThan(marginBudget) {
		t.Errorf("amount_quote * N = %s exceeds budget*1.05 = %s", total, marginBudget)
	}
}

func TestBuild_RejectsInvalidMidPrice(t *testing.T) {
	t.Parallel()

	if _, err := Build(baseConfig(), rules(), decimal.Zero); err == nil {
		t.Error("expected error for zero mid price")
	}
}
