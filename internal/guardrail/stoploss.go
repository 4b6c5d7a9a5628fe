package guardrail

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tradersim/internal/model"
	"tradersim/internal/notification"
)

// StopLoss is a SELL recommendation for a holding that fell through its
// stop price.
type StopLoss struct {
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	Price     decimal.Decimal `json:"price"`
	StopPrice decimal.Decimal `json:"stop_price"`
	PnLPct    decimal.Decimal `json:"pnl_pct"`
}

// Proposal returns the full-position SELL for s.
func (s StopLoss) Proposal() Proposal {
	return Proposal{
		Side:      model.SideSell,
		Symbol:    s.Symbol,
		Shares:    s.Shares,
		Reasoning: fmt.Sprintf("Stop loss triggered at %s%%", s.PnLPct.StringFixed(1)),
	}
}

// StopLosses lists holdings priced at or below avg_cost*(1-stop_loss_pct),
// sorted by symbol. Holdings that cannot be priced are skipped. Nothing is
// sold.
func (v *Validator) StopLosses(ctx context.Context) []StopLoss {
	if v.cfg.StopLossPct <= 0 {
		return nil
	}
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(v.cfg.StopLossPct))
	state := v.engine.Portfolio().View()

	var out []StopLoss
	for sym, h := range state.Holdings {
		q, err := v.prices.Quote(ctx, sym)
		if err != nil {
			v.log.Debug("stop-loss check skipped", "symbol", sym, "error", err)
			continue
		}
		stop := h.AvgCost.Mul(keep)
		if q.Price.GreaterThan(stop) {
			continue
		}
		out = append(out, StopLoss{
			Symbol:    sym,
			Shares:    h.Shares,
			AvgCost:   h.AvgCost,
			Price:     q.Price,
			StopPrice: stop.Round(4),
			PnLPct:    q.Price.Sub(h.AvgCost).Div(h.AvgCost).Mul(decimal.NewFromInt(100)).Round(2),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// EnforceStopLosses sells every position StopLosses reports. Forced sells
// bypass the policy checks but count toward the daily trade budget.
func (v *Validator) EnforceStopLosses(ctx context.Context) ([]model.Trade, error) {
	stops := v.StopLosses(ctx)
	if len(stops) == 0 {
		return nil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.rollDay()

	var trades []model.Trade
	var errs []error
	for _, s := range stops {
		t, err := v.engine.Execute(ctx, model.SideSell, s.Symbol, s.Shares)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop loss %s: %w", s.Symbol, err))
			continue
		}
		v.count(model.SideSell)
		trades = append(trades, t)
		v.log.Warn("stop loss executed", "symbol", s.Symbol, "shares", s.Shares, "pnl_pct", s.PnLPct.String())
		v.notify(ctx, notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Stop loss " + s.Symbol,
			Message: fmt.Sprintf("sold %d @ %s (%s%%)", s.Shares, t.Price.StringFixed(2), s.PnLPct.StringFixed(1)),
			Symbol:  s.Symbol,
		})
	}
	v.metrics.ObserveStopLoss(len(trades))
	return trades, errors.Join(errs...)
}
