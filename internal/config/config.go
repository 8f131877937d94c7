// Package config loads the dual-grid bot's configuration.
//
// Config is read from a YAML file (default: configs/config.yaml) via Viper,
// with credential fields overridable by GRIDBOT_* environment variables,
// following a layered-load pattern. Unlike a file-watching config loader
// built on fsnotify, this config is immutable per run (§3) — Load reads
// once at startup and is never hot-reloaded.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/dualgrid/dualgrid/pkg/types"
)

// AccountConfig holds one exchange session's credentials and endpoints. Two
// of these are configured — "a" (long grid) and "b" (short grid) — mirroring
// strategy_controller.py's two independent BinanceConnector instances.
type AccountConfig struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	BaseURL     string `mapstructure:"base_url"`
	WSMarketURL string `mapstructure:"ws_market_url"`
	WSUserURL   string `mapstructure:"ws_user_url"`
}

// AccountsConfig is the pair of segregated exchange sessions the controller
// supervises.
type AccountsConfig struct {
	A AccountConfig `mapstructure:"a"`
	B AccountConfig `mapstructure:"b"`
}

// GridConfig is the shared grid-parameter surface of spec §6.2, consumed by
// both the long and short executor. Side-specific fields (grid side, which
// account) are supplied separately when building the two types.ExecutorConfig
// values — see ToExecutorConfig.
type GridConfig struct {
	Pair         string `mapstructure:"pair"`
	ContractType string `mapstructure:"contract_type"`
	Leverage     int    `mapstructure:"leverage"`

	StartPrice decimal.Decimal `mapstructure:"start_price"`
	EndPrice   decimal.Decimal `mapstructure:"end_price"`

	TotalAmountQuote       decimal.Decimal `mapstructure:"total_amount_quote"`
	MaxOpenOrders          int             `mapstructure:"max_open_orders"`
	MinSpreadBetweenOrders decimal.Decimal `mapstructure:"min_spread_between_orders"`
	MinOrderAmountQuote    decimal.Decimal `mapstructure:"min_order_amount_quote"`

	TakeProfitPct   decimal.Decimal `mapstructure:"take_profit_pct"`
	SafeExtraSpread decimal.Decimal `mapstructure:"safe_extra_spread"`

	// OrderFrequency is given in seconds in the file, converted to a
	// time.Duration below (0 = unlimited, per §3).
	OrderFrequencySeconds int `mapstructure:"order_frequency"`

	// ActivationBoundsPct is nil when the key is absent — every level stays
	// eligible, per §4.5.
	ActivationBoundsPct *decimal.Decimal `mapstructure:"activation_bounds"`

	// FeeAdjustmentPct is the §9 Open Question (c) heuristic, defaulting to
	// zero — venues charging fees in quote asset need no adjustment.
	FeeAdjustmentPct decimal.Decimal `mapstructure:"fee_adjustment_pct"`

	UpdateIntervalSeconds int `mapstructure:"update_interval"`
	MaxRetries            int `mapstructure:"max_retries"`
}

// LoggingConfig controls the log/slog handler built in cmd/run. cmd/cleanup
// does not read it and always logs JSON at info level.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig is decoded from the file's metrics section (§13.2), but no
// binary reads it: /metrics is served by the health server, on
// HealthConfig.Addr and only while HealthConfig.Enabled is set.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// HealthConfig controls the /healthz endpoint (§13.3).
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the top-level configuration, maps directly onto the YAML file.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Grid     GridConfig     `mapstructure:"grid"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
}

// Load reads config from a YAML file with GRIDBOT_*-prefixed environment
// variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GRIDBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		decimalDecodeHook(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("GRIDBOT_ACCOUNT_A_API_KEY"); key != "" {
		cfg.Accounts.A.APIKey = key
	}
	if secret := os.Getenv("GRIDBOT_ACCOUNT_A_API_SECRET"); secret != "" {
		cfg.Accounts.A.APISecret = secret
	}
	if key := os.Getenv("GRIDBOT_ACCOUNT_B_API_KEY"); key != "" {
		cfg.Accounts.B.APIKey = key
	}
	if secret := os.Getenv("GRIDBOT_ACCOUNT_B_API_SECRET"); secret != "" {
		cfg.Accounts.B.APISecret = secret
	}
	if os.Getenv("GRIDBOT_DRY_RUN") == "true" || os.Getenv("GRIDBOT_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks the §6.2 invariants plus the account/ambient surface this
// repo adds.
func (c *Config) Validate() error {
	if c.Accounts.A.APIKey == "" || c.Accounts.A.APISecret == "" {
		return fmt.Errorf("accounts.a: api_key and api_secret are required")
	}
	if c.Accounts.B.APIKey == "" || c.Accounts.B.APISecret == "" {
		return fmt.Errorf("accounts.b: api_key and api_secret are required")
	}
	if c.Grid.Pair == "" {
		return fmt.Errorf("grid.pair is required")
	}
	if !c.Grid.StartPrice.LessThan(c.Grid.EndPrice) {
		return fmt.Errorf("grid.start_price must be less than grid.end_price")
	}
	if c.Grid.TotalAmountQuote.Sign() <= 0 {
		return fmt.Errorf("grid.total_amount_quote must be positive")
	}
	if c.Grid.MaxOpenOrders < 1 {
		return fmt.Errorf("grid.max_open_orders must be at least 1")
	}
	if c.Grid.TakeProfitPct.Sign() <= 0 {
		return fmt.Errorf("grid.take_profit_pct must be positive")
	}
	if c.Grid.Leverage < 1 {
		return fmt.Errorf("grid.leverage must be at least 1")
	}
	return nil
}

// ToExecutorConfig builds one side's types.ExecutorConfig from the shared
// grid parameters, per strategy_controller.py's initialize_executors (which
// instantiates two GridExecutorConfig values differing only in id/side).
func (c *Config) ToExecutorConfig(id string, side types.GridSide) types.ExecutorConfig {
	return types.ExecutorConfig{
		ID:                     id,
		Pair:                   c.Grid.Pair,
		Side:                   side,
		StartPrice:             c.Grid.StartPrice,
		EndPrice:               c.Grid.EndPrice,
		TotalAmountQuote:       c.Grid.TotalAmountQuote,
		MaxOpenOrders:          c.Grid.MaxOpenOrders,
		MinSpreadBetweenOrders: c.Grid.MinSpreadBetweenOrders,
		MinOrderAmountQuote:    c.Grid.MinOrderAmountQuote,
		TakeProfitPct:          c.Grid.TakeProfitPct,
		SafeExtraSpread:        c.Grid.SafeExtraSpread,
		OrderFrequency:         time.Duration(c.Grid.OrderFrequencySeconds) * time.Second,
		ActivationBounds:       c.Grid.ActivationBoundsPct,
		FeeAdjustmentPct:       c.Grid.FeeAdjustmentPct,
		Leverage:               c.Grid.Leverage,
		UpdateInterval:         time.Duration(c.Grid.UpdateIntervalSeconds) * time.Second,
		MaxRetries:             c.Grid.MaxRetries,
	}
}

// decimalDecodeHook teaches mapstructure (which Viper delegates to) how to
// turn a YAML string or number into a decimal.Decimal, the same way
// StringToTimeDurationHookFunc teaches it durations.
func decimalDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) && to != reflect.TypeOf(&decimal.Decimal{}) {
			return data, nil
		}
		if data == nil {
			return data, nil
		}

		var s string
		switch v := data.(type) {
		case string:
			s = v
		case float64:
			s = fmt.Sprintf("%v", v)
		case int:
			s = fmt.Sprintf("%d", v)
		default:
			return data, nil
		}
		if s == "" {
			return data, nil
		}

		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parse decimal %q: %w", s, err)
		}
		if to == reflect.TypeOf(&decimal.Decimal{}) {
			return &d, nil
		}
		return d, nil
	}
}
