package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuantizeDown(t *testing.T) {
	t.Parallel()

	got := QuantizeDown(dec("0.26489"), dec("0.00001"))
	want := dec("0.26489")
	if !got.Equal(want) {
		t.Errorf("QuantizeDown(0.26489, 0.00001) = %s, want %s", got, want)
	}

	got = QuantizeDown(dec("0.264897"), dec("0.00001"))
	want = dec("0.26489")
	if !got.Equal(want) {
		t.Errorf("QuantizeDown(0.264897, 0.00001) = %s, want %s", got, want)
	}
}

func TestQuantizeUp(t *testing.T) {
	t.Parallel()

	got := QuantizeUp(dec("0.264891"), dec("0.00001"))
	want := dec("0.26490")
	if !got.Equal(want) {
		t.Errorf("QuantizeUp(0.264891, 0.00001) = %s, want %s", got, want)
	}
}

func TestQuantizeRoundTrip(t *testing.T) {
	t.Parallel()

	increment := dec("0.01")
	for _, s := range []string{"1.234", "0.009", "5", "12.345678"} {
		x := dec(s)
		once := QuantizeDown(x, increment)
		twice := QuantizeDown(once, increment)
		if !once.Equal(twice) {
			t.Errorf("quantize(quantize(%s)) = %s, want %s", s, twice, once)
		}
	}
}

func TestExecutorConfigValidate(t *testing.T) {
	t.Parallel()

	valid := ExecutorConfig{
		Pair:             "BTCUSDT",
		StartPrice:       dec("0.248"),
		EndPrice:         dec("0.280"),
		TotalAmountQuote: dec("1000"),
		MaxOpenOrders:    5,
		TakeProfitPct:    dec("0.001"),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config to pass, got %v", err)
	}

	bad := valid
	bad.StartPrice, bad.EndPrice = bad.EndPrice, bad.StartPrice
	if err := bad.Validate(); err == nil {
		t.Error("expected start >= end to fail validation")
	}

	bad = valid
	bad.TakeProfitPct = decimal.Zero
	if err := bad.Validate(); err == nil {
		t.Error("expected zero take_profit_pct to fail validation")
	}
}
