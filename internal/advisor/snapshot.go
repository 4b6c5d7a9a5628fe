// Package advisor is the boundary to an external decision maker. It
// renders a read-only view of the account and market, parses the
// decision that comes back and routes the proposed trades through the
// guardrails. It never calls the decision maker itself.
package advisor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/analyzer"
	"tradersim/internal/guardrail"
	"tradersim/internal/model"
	"tradersim/internal/portfolio"
)

// maxBuyingPower bounds the buying power list.
const maxBuyingPower = 15

// MarketLine is one symbol of the market view.
type MarketLine struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	DailyChange  float64 `json:"daily_change"`
	WeeklyChange float64 `json:"weekly_change"`
	RSI          float64 `json:"rsi"`
	Signal       string  `json:"signal,omitempty"`
	Trend        string  `json:"trend"`
}

// BuyingPower is the largest BUY the guardrails allow for a symbol.
type BuyingPower struct {
	Symbol    string  `json:"symbol"`
	MaxShares int64   `json:"max_shares"`
	Price     float64 `json:"price"`
}

// Snapshot is everything the decision maker sees.
type Snapshot struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	Guidance     string               `json:"guidance,omitempty"`
	Portfolio    portfolio.Status     `json:"portfolio"`
	MaxPositions int                  `json:"max_positions"`
	Market       []MarketLine         `json:"market"`
	BuyingPower  []BuyingPower        `json:"buying_power"`
	Guardrails   guardrail.Config     `json:"guardrails"`
	Budget       guardrail.Budget     `json:"budget"`
	StopLosses   []guardrail.StopLoss `json:"stop_losses,omitempty"`
}

// BuildSnapshot assembles the view. Market lines are sorted by daily
// change, largest first.
func BuildSnapshot(now time.Time, status portfolio.Status, state model.PortfolioState,
	analyses []analyzer.Analysis, v *guardrail.Validator, stops []guardrail.StopLoss, guidance string) Snapshot {

	lines := make([]MarketLine, 0, len(analyses))
	for _, a := range analyses {
		lines = append(lines, MarketLine{
			Symbol:       a.Symbol,
			Price:        a.Price,
			DailyChange:  a.DailyChange,
			WeeklyChange: a.WeeklyChange,
			RSI:          a.RSI,
			Signal:       a.Signal(),
			Trend:        a.Trend(),
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].DailyChange != lines[j].DailyChange {
			return lines[i].DailyChange > lines[j].DailyChange
		}
		return lines[i].Symbol < lines[j].Symbol
	})

	cfg := v.Config()
	snap := Snapshot{
		GeneratedAt:  now.UTC(),
		Guidance:     strings.TrimSpace(guidance),
		Portfolio:    status,
		MaxPositions: cfg.MaxPositions,
		Market:       lines,
		BuyingPower:  []BuyingPower{},
		Guardrails:   cfg,
		Budget:       v.Budget(),
		StopLosses:   stops,
	}
	for _, l := range lines {
		if len(snap.BuyingPower) == maxBuyingPower {
			break
		}
		n := v.MaxShares(state, l.Symbol, decimal.NewFromFloat(l.Price))
		if n > 0 {
			snap.BuyingPower = append(snap.BuyingPower, BuyingPower{Symbol: l.Symbol, MaxShares: n, Price: l.Price})
		}
	}
	return snap
}

// Prompt renders the snapshot as instructions for a text model.
func (s Snapshot) Prompt() string {
	var b strings.Builder
	b.WriteString("You are an autonomous stock trader. Analyze the current market and portfolio, then decide what trades to make.\n\n")

	if s.Guidance != "" {
		fmt.Fprintf(&b, "## YOUR TRADING STRATEGY\n%s\n\n", s.Guidance)
	}

	p := s.Portfolio
	fmt.Fprintf(&b, "## CURRENT PORTFOLIO\nCash: $%s\nTotal Value: $%s\n", p.Cash.StringFixed(2), p.TotalValue.StringFixed(2))
	if s.MaxPositions > 0 {
		fmt.Fprintf(&b, "Positions: %d/%d\n", p.NumHoldings, s.MaxPositions)
	} else {
		fmt.Fprintf(&b, "Positions: %d\n", p.NumHoldings)
	}
	b.WriteString("\nHoldings:\n")
	if len(p.Holdings) == 0 {
		b.WriteString("None\n")
	}
	for _, h := range p.Holdings {
		fmt.Fprintf(&b, "  %s: %d shares @ $%s (current: $%s, P&L: %s%%)\n",
			h.Symbol, h.Shares, h.AvgCost.StringFixed(2), h.CurrentPrice.StringFixed(2), signed(h.PnLPct))
	}

	b.WriteString("\n## MARKET DATA (sorted by daily change)\n")
	for _, l := range s.Market {
		note := ""
		if l.Signal != "" {
			note = " [" + l.Signal + "]"
		}
		fmt.Fprintf(&b, "  %s: $%.2f | Daily: %+.1f%% | Weekly: %+.1f%% | RSI: %.0f%s | %s\n",
			l.Symbol, l.Price, l.DailyChange, l.WeeklyChange, l.RSI, note, l.Trend)
	}

	b.WriteString("\n## BUYING POWER\n")
	for _, bp := range s.BuyingPower {
		fmt.Fprintf(&b, "  %s: max %d shares ($%.2f each)\n", bp.Symbol, bp.MaxShares, bp.Price)
	}

	b.WriteString("\n## GUARDRAILS (enforced by system)\n")
	for _, line := range guardrailLines(s.Guardrails, s.Budget) {
		fmt.Fprintf(&b, "- %s\n", line)
	}

	if len(s.StopLosses) > 0 {
		b.WriteString("\n## STOP LOSSES PENDING\n")
		for _, st := range s.StopLosses {
			fmt.Fprintf(&b, "  %s: %d shares at $%s (%s%%), will be sold\n",
				st.Symbol, st.Shares, st.Price.StringFixed(2), signed(st.PnLPct))
		}
	}

	b.WriteString(`
## YOUR TASK
Based on the strategy and current conditions, decide what trades to make RIGHT NOW.

Respond with ONLY a JSON object in this exact format:
{
  "analysis": "Brief 1-2 sentence market assessment",
  "trades": [
    {"action": "BUY" or "SELL", "symbol": "TICKER", "shares": number, "reasoning": "Why this trade fits the strategy"}
  ],
  "hold_reasoning": "If no trades, explain why holding is the right choice"
}

If no trades should be made, return an empty trades array with hold_reasoning.
Only suggest trades that respect the guardrails.
`)
	return b.String()
}

func guardrailLines(c guardrail.Config, budget guardrail.Budget) []string {
	var out []string
	if c.MaxPositionPct > 0 {
		out = append(out, fmt.Sprintf("Max position size: %.0f%% of portfolio", c.MaxPositionPct*100))
	}
	if c.MaxPositionValue > 0 {
		out = append(out, fmt.Sprintf("Max position value: $%.2f", c.MaxPositionValue))
	}
	if c.MaxTradeValue > 0 {
		out = append(out, fmt.Sprintf("Max trade value: $%.2f", c.MaxTradeValue))
	}
	if c.MaxPositions > 0 {
		out = append(out, fmt.Sprintf("Max positions: %d", c.MaxPositions))
	}
	if budget.TradesRemaining >= 0 {
		out = append(out, fmt.Sprintf("Max daily trades remaining: %d", budget.TradesRemaining))
	}
	if budget.BuysRemaining >= 0 {
		out = append(out, fmt.Sprintf("Max daily buys remaining: %d", budget.BuysRemaining))
	}
	if c.MinCashReserve > 0 {
		out = append(out, fmt.Sprintf("Min cash reserve: $%.2f", c.MinCashReserve))
	}
	if c.MinPositionValue > 0 {
		out = append(out, fmt.Sprintf("Min position value: $%.2f", c.MinPositionValue))
	}
	if c.StopLossPct > 0 {
		out = append(out, fmt.Sprintf("Force sell if position down %.0f%% or more", c.StopLossPct*100))
	}
	if len(c.BlockedSymbols) > 0 {
		out = append(out, "Blocked: "+strings.Join(c.BlockedSymbols, ", "))
	}
	return out
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(1)
	}
	return "+" + d.StringFixed(1)
}
