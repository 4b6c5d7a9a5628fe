// Package execution is the trade execution engine: it validates an order
// against the portfolio and a market price and applies it atomically.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradersim/internal/metrics"
	"tradersim/internal/model"
	"tradersim/internal/portfolio"
)

// avgCostPlaces bounds the precision of weighted average costs.
const avgCostPlaces = 6

// Order is a request to trade.
type Order struct {
	Side   model.Side
	Symbol string
	Shares int64
}

func (o Order) String() string {
	return fmt.Sprintf("%s %d %s", o.Side, o.Shares, o.Symbol)
}

// Check is an extra validation run under the portfolio write lock, after
// the funds and shares checks, with the execution quote. A non-nil error
// rejects the order.
type Check func(state model.PortfolioState, order Order, quote model.PriceQuote) error

// Engine executes orders against one portfolio.
type Engine struct {
	pf      *portfolio.Portfolio
	prices  portfolio.Pricer
	metrics *metrics.Metrics
	log     *slog.Logger
	newID   func() string
}

// NewEngine creates an engine. m and log may be nil.
func NewEngine(pf *portfolio.Portfolio, prices portfolio.Pricer, m *metrics.Metrics, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		pf:      pf,
		prices:  prices,
		metrics: m,
		log:     log.With("component", "execution"),
		newID:   uuid.NewString,
	}
}

// Portfolio returns the portfolio the engine trades.
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.pf }

// Execute validates and applies one order. Validation failures leave the
// portfolio unchanged.
func (e *Engine) Execute(ctx context.Context, side model.Side, symbol string, shares int64) (model.Trade, error) {
	return e.ExecuteChecked(ctx, Order{Side: side, Symbol: symbol, Shares: shares}, nil)
}

// ExecuteChecked is Execute with an extra check evaluated atomically with
// the apply step.
func (e *Engine) ExecuteChecked(ctx context.Context, order Order, check Check) (model.Trade, error) {
	order.Symbol = strings.ToUpper(strings.TrimSpace(order.Symbol))
	trade, err := e.execute(ctx, order, check)
	if err != nil {
		e.metrics.ObserveRejection(Reason(err))
		e.log.InfoContext(ctx, "order rejected",
			"order", order.String(), "reason", Reason(err), "error", err)
		return model.Trade{}, err
	}
	total, _ := trade.Total.Float64()
	e.metrics.ObserveTrade(string(trade.Side), total)
	e.log.InfoContext(ctx, "order executed",
		"trade_id", trade.ID,
		"order", order.String(),
		"price", trade.Price.String(),
		"source", string(trade.PriceSource),
		"cash_after", trade.CashAfter.StringFixed(2),
	)
	return trade, nil
}

func (e *Engine) execute(ctx context.Context, order Order, check Check) (model.Trade, error) {
	if order.Shares <= 0 {
		return model.Trade{}, fmt.Errorf("%w: shares must be positive, got %d", ErrInvalidOrder, order.Shares)
	}
	if !order.Side.Valid() {
		return model.Trade{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}
	if order.Symbol == "" {
		return model.Trade{}, fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}

	// The quote is taken before the lock so a slow live fetch never blocks
	// readers.
	quote, err := e.prices.Quote(ctx, order.Symbol)
	if err != nil {
		return model.Trade{}, err
	}
	if !quote.Price.IsPositive() {
		return model.Trade{}, fmt.Errorf("%s: unusable price %s", order.Symbol, quote.Price)
	}

	var trade model.Trade
	err = e.pf.Update(ctx, func(s *model.PortfolioState) error {
		if err := validate(*s, order, quote.Price); err != nil {
			return err
		}
		if check != nil {
			if err := check(*s, order, quote); err != nil {
				return err
			}
		}
		trade = apply(s, order, quote)
		trade.ID = e.newID()
		trade.Timestamp = e.pf.Now().UTC()
		s.Transactions = append(s.Transactions, trade)
		return nil
	})
	if err != nil {
		return model.Trade{}, err
	}
	return trade, nil
}

func validate(s model.PortfolioState, o Order, price decimal.Decimal) error {
	switch o.Side {
	case model.SideBuy:
		cost := price.Mul(decimal.NewFromInt(o.Shares))
		if cost.GreaterThan(s.Cash) {
			return fmt.Errorf("%w: have $%s, need $%s (max %d shares at $%s)",
				ErrInsufficientFunds, s.Cash.StringFixed(2), cost.StringFixed(2),
				s.Cash.Div(price).IntPart(), price.StringFixed(2))
		}
	case model.SideSell:
		h, ok := s.Holdings[o.Symbol]
		if !ok {
			return fmt.Errorf("%w: no position in %s", ErrInsufficientShares, o.Symbol)
		}
		if h.Shares < o.Shares {
			return fmt.Errorf("%w: have %d %s, trying to sell %d", ErrInsufficientShares, h.Shares, o.Symbol, o.Shares)
		}
	}
	return nil
}

// apply mutates s and returns the trade without id and timestamp.
func apply(s *model.PortfolioState, o Order, q model.PriceQuote) model.Trade {
	qty := decimal.NewFromInt(o.Shares)
	total := q.Price.Mul(qty)
	t := model.Trade{
		Symbol:      o.Symbol,
		Side:        o.Side,
		Shares:      o.Shares,
		Price:       q.Price,
		Total:       total,
		PriceSource: q.Source,
	}

	h := s.Holdings[o.Symbol]
	switch o.Side {
	case model.SideBuy:
		s.Cash = s.Cash.Sub(total)
		if h.Shares == 0 {
			h = model.Holding{Shares: o.Shares, AvgCost: q.Price}
		} else {
			newShares := h.Shares + o.Shares
			h.AvgCost = h.CostBasis().Add(total).Div(decimal.NewFromInt(newShares)).Round(avgCostPlaces)
			h.Shares = newShares
		}
		s.Holdings[o.Symbol] = h

	case model.SideSell:
		s.Cash = s.Cash.Add(total)
		t.RealizedPnL = q.Price.Sub(h.AvgCost).Mul(qty)
		s.RealizedPnL = s.RealizedPnL.Add(t.RealizedPnL)
		h.Shares -= o.Shares
		if h.Shares == 0 {
			delete(s.Holdings, o.Symbol)
		} else {
			s.Holdings[o.Symbol] = h
		}
	}
	t.CashAfter = s.Cash
	return t
}

// Reset wipes the account and funds it with cash.
func (e *Engine) Reset(ctx context.Context, cash decimal.Decimal) error {
	return e.pf.Reset(ctx, cash)
}

// AdvanceDay moves the simulation to the next trading day.
func (e *Engine) AdvanceDay(ctx context.Context) (int, error) {
	var day int
	err := e.pf.Update(ctx, func(s *model.PortfolioState) error {
		s.Day++
		day = s.Day
		return nil
	})
	if err == nil {
		e.log.Info("advanced day", "day", day)
	}
	return day, err
}
