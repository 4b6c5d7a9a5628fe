package guardrail

import "fmt"

// Rule names, also used as metric labels.
const (
	RuleTradingHours     = "trading_hours"
	RuleBlockedSymbol    = "blocked_symbol"
	RuleMaxDailyTrades   = "max_daily_trades"
	RuleMaxDailyBuys     = "max_daily_buys"
	RuleMaxTradeValue    = "max_trade_value"
	RuleMaxPositionValue = "max_position_value"
	RuleMaxPositionPct   = "max_position_pct"
	RuleMaxPositions     = "max_positions"
	RuleMinPositionValue = "min_position_value"
	RuleMinCashReserve   = "min_cash_reserve"
	RuleStaleQuote       = "stale_quote"
)

// Violation is a policy rejection. The order it rejects was not applied
// and was not adjusted; callers re-submit a corrected order.
type Violation struct {
	Rule   string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("guardrail %s: %s", v.Rule, v.Reason)
}

// RuleName returns the rule that rejected the order.
func (v *Violation) RuleName() string { return v.Rule }

func violation(rule, format string, args ...any) *Violation {
	return &Violation{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}
