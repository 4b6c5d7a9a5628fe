// Package guardrail layers policy limits in front of the execution engine
// for unattended callers: a trading-hours gate, position sizing limits,
// daily trade budgets and stop-loss recommendations.
//
// Violations are reported, never coerced: an oversized order is rejected
// with a *Violation, not trimmed to fit.
package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/execution"
	"tradersim/internal/markethours"
	"tradersim/internal/metrics"
	"tradersim/internal/model"
	"tradersim/internal/notification"
	"tradersim/internal/portfolio"
)

// Proposal is an order suggested by an unattended caller.
type Proposal struct {
	Side      model.Side `json:"action"`
	Symbol    string     `json:"symbol"`
	Shares    int64      `json:"shares"`
	Reasoning string     `json:"reasoning,omitempty"`

	// OverrideHours skips the trading-hours gate for this proposal.
	OverrideHours bool `json:"-"`
}

func (p Proposal) order() execution.Order {
	return execution.Order{Side: p.Side, Symbol: p.Symbol, Shares: p.Shares}
}

// Clock answers whether trading is allowed at a given time.
// *markethours.Session satisfies it.
type Clock interface {
	IsOpen(t time.Time) bool
}

// Deps are the collaborators of a Validator. Engine and Prices are
// required.
type Deps struct {
	Engine   *execution.Engine
	Prices   portfolio.Pricer
	Session  Clock
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Validator checks proposals against Config before executing them.
type Validator struct {
	cfg      Config
	engine   *execution.Engine
	prices   portfolio.Pricer
	session  Clock
	notifier notification.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	blocked  map[string]bool

	mu     sync.Mutex // serializes Submit and guards the daily counters
	day    string
	trades int
	buys   int
}

// New validates cfg and builds a Validator.
func New(cfg Config, deps Deps) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("guardrail config: %w", err)
	}
	if deps.Engine == nil || deps.Prices == nil {
		return nil, errors.New("guardrail: engine and prices are required")
	}
	if deps.Session == nil {
		deps.Session = markethours.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	v := &Validator{
		cfg:      cfg,
		engine:   deps.Engine,
		prices:   deps.Prices,
		session:  deps.Session,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		log:      deps.Logger.With("component", "guardrail"),
		now:      deps.Now,
		blocked:  make(map[string]bool, len(cfg.BlockedSymbols)),
	}
	for _, s := range cfg.BlockedSymbols {
		v.blocked[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return v, nil
}

// Config returns the active limits.
func (v *Validator) Config() Config { return v.cfg }

// Submit checks p and executes it. Policy rejections are *Violation;
// execution failures are the engine's errors.
func (v *Validator) Submit(ctx context.Context, p Proposal) (model.Trade, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))

	v.mu.Lock()
	defer v.mu.Unlock()
	v.rollDay()

	if err := v.precheck(p); err != nil {
		return model.Trade{}, v.reject(ctx, p, err)
	}

	// Other holdings are priced before the portfolio lock; the proposal's
	// own symbol is valued at the execution quote inside the check.
	var others map[string]decimal.Decimal
	if p.Side == model.SideBuy && v.cfg.MaxPositionPct > 0 {
		others = portfolio.Prices(ctx, v.engine.Portfolio().View(), v.prices)
	}

	trade, err := v.engine.ExecuteChecked(ctx, p.order(), func(s model.PortfolioState, o execution.Order, q model.PriceQuote) error {
		return v.check(s, o, q, others)
	})
	if err != nil {
		var viol *Violation
		if errors.As(err, &viol) {
			return model.Trade{}, v.reject(ctx, p, viol)
		}
		return model.Trade{}, err
	}
	v.count(trade.Side)
	return trade, nil
}

func (v *Validator) precheck(p Proposal) *Violation {
	if v.cfg.EnforceTradingHours && !p.OverrideHours && !v.session.IsOpen(v.now()) {
		return violation(RuleTradingHours, "outside trading hours")
	}
	if v.blocked[p.Symbol] {
		return violation(RuleBlockedSymbol, "%s is blocked", p.Symbol)
	}
	if v.cfg.MaxDailyTrades > 0 && v.trades >= v.cfg.MaxDailyTrades {
		return violation(RuleMaxDailyTrades, "max daily trades (%d) reached", v.cfg.MaxDailyTrades)
	}
	if p.Side == model.SideBuy && v.cfg.MaxDailyBuys > 0 && v.buys >= v.cfg.MaxDailyBuys {
		return violation(RuleMaxDailyBuys, "max daily buys (%d) reached", v.cfg.MaxDailyBuys)
	}
	return nil
}

// check runs under the portfolio write lock with the execution quote.
func (v *Validator) check(s model.PortfolioState, o execution.Order, q model.PriceQuote, others map[string]decimal.Decimal) error {
	if v.cfg.RejectStaleQuotes && q.Stale {
		return violation(RuleStaleQuote, "%s quote is stale (as of %s)", o.Symbol, q.AsOf.UTC().Format(time.RFC3339))
	}
	value := q.Price.Mul(decimal.NewFromInt(o.Shares))
	if limit := decimal.NewFromFloat(v.cfg.MaxTradeValue); limit.IsPositive() && value.GreaterThan(limit) {
		return violation(RuleMaxTradeValue, "trade value $%s exceeds $%s", value.StringFixed(2), limit.StringFixed(2))
	}
	if o.Side != model.SideBuy {
		return nil
	}

	if reserve := decimal.NewFromFloat(v.cfg.MinCashReserve); reserve.IsPositive() && s.Cash.Sub(value).LessThan(reserve) {
		return violation(RuleMinCashReserve, "would leave $%s cash, below the $%s reserve",
			s.Cash.Sub(value).StringFixed(2), reserve.StringFixed(2))
	}
	if lo := decimal.NewFromFloat(v.cfg.MinPositionValue); lo.IsPositive() && value.LessThan(lo) {
		return violation(RuleMinPositionValue, "position too small ($%s, min $%s)", value.StringFixed(2), lo.StringFixed(2))
	}

	held, holding := s.Holdings[o.Symbol]
	after := q.Price.Mul(decimal.NewFromInt(held.Shares + o.Shares))
	if hi := decimal.NewFromFloat(v.cfg.MaxPositionValue); hi.IsPositive() && after.GreaterThan(hi) {
		return violation(RuleMaxPositionValue, "%s position would be $%s, max $%s", o.Symbol, after.StringFixed(2), hi.StringFixed(2))
	}
	if v.cfg.MaxPositionPct > 0 {
		prices := make(map[string]decimal.Decimal, len(others)+1)
		for k, p := range others {
			prices[k] = p
		}
		prices[o.Symbol] = q.Price
		allowed := portfolio.TotalValue(s, prices).Mul(decimal.NewFromFloat(v.cfg.MaxPositionPct))
		if after.GreaterThan(allowed) {
			return violation(RuleMaxPositionPct, "%s position would be $%s, over %.0f%% of the portfolio ($%s)",
				o.Symbol, after.StringFixed(2), v.cfg.MaxPositionPct*100, allowed.StringFixed(2))
		}
	}
	if !holding && v.cfg.MaxPositions > 0 && len(s.Holdings) >= v.cfg.MaxPositions {
		return violation(RuleMaxPositions, "max positions (%d) reached", v.cfg.MaxPositions)
	}
	return nil
}

func (v *Validator) reject(ctx context.Context, p Proposal, viol *Violation) error {
	v.metrics.ObserveViolation(viol.Rule)
	v.log.WarnContext(ctx, "proposal rejected",
		"proposal", p.order().String(), "rule", viol.Rule, "reason", viol.Reason)
	v.notify(ctx, notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "Guardrail rejected " + p.order().String(),
		Message: viol.Reason,
		Symbol:  p.Symbol,
	})
	return viol
}

func (v *Validator) notify(ctx context.Context, a notification.Alert) {
	if v.notifier == nil {
		return
	}
	if err := v.notifier.Send(ctx, a); err != nil {
		v.log.Warn("alert delivery failed", "title", a.Title, "error", err)
	}
}

// rollDay resets the daily counters on a new Eastern calendar day and
// seeds them from the trades already recorded that day, so the budget
// holds across process restarts. Callers hold v.mu.
func (v *Validator) rollDay() {
	today := easternDate(v.now())
	if v.day == today {
		return
	}
	v.day, v.trades, v.buys = today, 0, 0
	for _, t := range v.engine.Portfolio().View().Transactions {
		if easternDate(t.Timestamp) == today {
			v.count(t.Side)
		}
	}
}

func easternDate(t time.Time) string {
	return t.In(markethours.Eastern).Format("2006-01-02")
}

func (v *Validator) count(side model.Side) {
	v.trades++
	if side == model.SideBuy {
		v.buys++
	}
}

// Budget is what remains of the daily limits. A negative remainder means
// the limit is disabled.
type Budget struct {
	TradesToday     int `json:"trades_today"`
	BuysToday       int `json:"buys_today"`
	TradesRemaining int `json:"trades_remaining"`
	BuysRemaining   int `json:"buys_remaining"`
}

// Budget reports today's trade counts.
func (v *Validator) Budget() Budget {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rollDay()
	b := Budget{TradesToday: v.trades, BuysToday: v.buys, TradesRemaining: -1, BuysRemaining: -1}
	if v.cfg.MaxDailyTrades > 0 {
		b.TradesRemaining = max(0, v.cfg.MaxDailyTrades-v.trades)
	}
	if v.cfg.MaxDailyBuys > 0 {
		b.BuysRemaining = max(0, v.cfg.MaxDailyBuys-v.buys)
	}
	return b
}

// MaxShares is the largest BUY of symbol at price that the cash reserve
// and position limits allow. Other holdings are valued at cost.
func (v *Validator) MaxShares(s model.PortfolioState, symbol string, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 0
	}
	symbol = strings.ToUpper(symbol)
	spendable := s.Cash.Sub(decimal.NewFromFloat(v.cfg.MinCashReserve))
	best := spendable.Div(price).Floor().IntPart()

	held := decimal.NewFromInt(s.Holdings[symbol].Shares).Mul(price)
	room := func(limit decimal.Decimal) int64 {
		return limit.Sub(held).Div(price).Floor().IntPart()
	}
	if hi := decimal.NewFromFloat(v.cfg.MaxPositionValue); hi.IsPositive() {
		best = min(best, room(hi))
	}
	if v.cfg.MaxPositionPct > 0 {
		total := portfolio.TotalValue(s, map[string]decimal.Decimal{symbol: price})
		best = min(best, room(total.Mul(decimal.NewFromFloat(v.cfg.MaxPositionPct))))
	}
	if t := decimal.NewFromFloat(v.cfg.MaxTradeValue); t.IsPositive() {
		best = min(best, t.Div(price).Floor().IntPart())
	}
	return max(0, best)
}
