package guardrail

import (
	"errors"
	"fmt"
	"strings"
)

// Config enumerates every guardrail. A zero value disables the rule it
// configures. Percentages are fractions: 0.25 means 25%.
type Config struct {
	// EnforceTradingHours rejects proposals outside the session trading
	// window unless the proposal sets OverrideHours.
	EnforceTradingHours bool `yaml:"enforce_trading_hours" json:"enforce_trading_hours"`

	MaxPositionValue float64  `yaml:"max_position_value" json:"max_position_value"`
	MaxPositionPct   float64  `yaml:"max_position_pct" json:"max_position_pct"`
	MaxTradeValue    float64  `yaml:"max_trade_value" json:"max_trade_value"`
	MaxPositions     int      `yaml:"max_positions" json:"max_positions"`
	MinPositionValue float64  `yaml:"min_position_value" json:"min_position_value"`
	MinCashReserve   float64  `yaml:"min_cash_reserve" json:"min_cash_reserve"`
	BlockedSymbols   []string `yaml:"blocked_symbols" json:"blocked_symbols"`
	MaxDailyTrades   int      `yaml:"max_daily_trades" json:"max_daily_trades"`
	MaxDailyBuys     int      `yaml:"max_daily_buys" json:"max_daily_buys"`

	// StopLossPct flags holdings priced at or below avg_cost*(1-StopLossPct).
	StopLossPct float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`

	// RejectStaleQuotes rejects proposals priced from a stale cached quote.
	RejectStaleQuotes bool `yaml:"reject_stale_quotes" json:"reject_stale_quotes"`
}

// DefaultConfig returns the stock strategy limits.
func DefaultConfig() Config {
	return Config{
		EnforceTradingHours: true,
		MaxPositionPct:      0.25,
		MaxPositions:        8,
		MinPositionValue:    20,
		MinCashReserve:      25,
		MaxDailyTrades:      8,
		MaxDailyBuys:        5,
		StopLossPct:         0.12,
		BlockedSymbols:      []string{},
	}
}

// Validate reports every invalid option.
func (c Config) Validate() error {
	var errs []error
	nonNeg := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, v))
		}
	}
	nonNeg("max_position_value", c.MaxPositionValue)
	nonNeg("max_trade_value", c.MaxTradeValue)
	nonNeg("min_position_value", c.MinPositionValue)
	nonNeg("min_cash_reserve", c.MinCashReserve)
	if c.MaxPositionPct < 0 || c.MaxPositionPct > 1 {
		errs = append(errs, fmt.Errorf("max_position_pct must be within [0,1], got %v", c.MaxPositionPct))
	}
	if c.StopLossPct < 0 || c.StopLossPct >= 1 {
		errs = append(errs, fmt.Errorf("stop_loss_pct must be within [0,1), got %v", c.StopLossPct))
	}
	if c.MaxPositions < 0 || c.MaxDailyTrades < 0 || c.MaxDailyBuys < 0 {
		errs = append(errs, errors.New("max_positions, max_daily_trades and max_daily_buys must not be negative"))
	}
	if c.MaxPositionValue > 0 && c.MinPositionValue > c.MaxPositionValue {
		errs = append(errs, fmt.Errorf("min_position_value %v exceeds max_position_value %v", c.MinPositionValue, c.MaxPositionValue))
	}
	for _, s := range c.BlockedSymbols {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("blocked_symbols contains an empty symbol"))
			break
		}
	}
	return errors.Join(errs...)
}
