// Package portfolio owns the authoritative account state.
//
// A Portfolio is the single writer of one account: every mutation runs
// under its write lock against a private copy, is persisted, and only then
// becomes visible. Readers get copies and never observe a half-applied
// change.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/metrics"
	"tradersim/internal/model"
)

// Portfolio is the handle to one account.
type Portfolio struct {
	mu      sync.RWMutex
	state   model.PortfolioState
	store   model.PortfolioStore
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// Option customizes a Portfolio.
type Option func(*Portfolio)

// WithMetrics records store latency and valuations.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Portfolio) { p.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Portfolio) { p.log = l.With("component", "portfolio") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Portfolio) { p.now = now } }

// Open loads the account from store, creating and saving a fresh one
// funded with startingCash when none exists.
func Open(ctx context.Context, store model.PortfolioStore, startingCash decimal.Decimal, opts ...Option) (*Portfolio, error) {
	if store == nil {
		return nil, errors.New("portfolio: nil store")
	}
	if startingCash.IsNegative() {
		return nil, fmt.Errorf("portfolio: negative starting cash %s", startingCash)
	}
	p := newPortfolio(store, opts)

	state, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio load: %w", err)
	}
	if !found {
		state = model.NewPortfolioState(startingCash, p.now())
		if err := p.save(ctx, state); err != nil {
			return nil, err
		}
		p.log.Info("created portfolio", "cash", startingCash.StringFixed(2))
	}
	if err := Check(state); err != nil {
		return nil, fmt.Errorf("portfolio load: %w", err)
	}
	if state.Holdings == nil {
		state.Holdings = make(map[string]model.Holding)
	}
	p.state = state
	return p, nil
}

// New wraps an in-memory state. The state is persisted to store on every
// mutation.
func New(state model.PortfolioState, store model.PortfolioStore, opts ...Option) *Portfolio {
	p := newPortfolio(store, opts)
	if state.Holdings == nil {
		state.Holdings = make(map[string]model.Holding)
	}
	p.state = state
	return p
}

func newPortfolio(store model.PortfolioStore, opts []Option) *Portfolio {
	p := &Portfolio{
		store: store,
		log:   slog.Default().With("component", "portfolio"),
		now:   time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// View returns a copy of the current state.
func (p *Portfolio) View() model.PortfolioState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Clone()
}

// Update applies fn to a copy of the state under the write lock. When fn
// succeeds and the copy is persisted, the copy becomes the state.
// Otherwise the state is left exactly as it was.
func (p *Portfolio) Update(ctx context.Context, fn func(*model.PortfolioState) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := Check(next); err != nil {
		return fmt.Errorf("portfolio update rejected: %w", err)
	}
	if err := p.save(ctx, next); err != nil {
		return err
	}
	p.state = next
	return nil
}

// Reset replaces the account with a fresh one funded with cash.
func (p *Portfolio) Reset(ctx context.Context, cash decimal.Decimal) error {
	if cash.IsNegative() {
		return fmt.Errorf("portfolio: negative starting cash %s", cash)
	}
	now := p.now()
	err := p.Update(ctx, func(s *model.PortfolioState) error {
		*s = model.NewPortfolioState(cash, now)
		return nil
	})
	if err == nil {
		p.log.Info("portfolio reset", "cash", cash.StringFixed(2))
	}
	return err
}

// Now returns the portfolio clock.
func (p *Portfolio) Now() time.Time { return p.now() }

func (p *Portfolio) save(ctx context.Context, s model.PortfolioState) error {
	if p.store == nil {
		return nil
	}
	start := time.Now()
	err := p.store.Save(ctx, s)
	p.metrics.ObserveSave(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("portfolio save: %w", err)
	}
	return nil
}

// Check verifies the account invariants: non-negative cash, positive
// share counts and positive average costs.
func Check(s model.PortfolioState) error {
	if s.Cash.IsNegative() {
		return fmt.Errorf("negative cash %s", s.Cash)
	}
	for sym, h := range s.Holdings {
		if h.Shares <= 0 {
			return fmt.Errorf("%s: non-positive shares %d", sym, h.Shares)
		}
		if !h.AvgCost.IsPositive() {
			return fmt.Errorf("%s: non-positive avg cost %s", sym, h.AvgCost)
		}
	}
	return nil
}

// History returns the last limit transactions, newest last. limit <= 0
// returns all of them.
func (p *Portfolio) History(limit int) []model.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tx := p.state.Transactions
	if limit > 0 && len(tx) > limit {
		tx = tx[len(tx)-limit:]
	}
	out := make([]model.Trade, len(tx))
	copy(out, tx)
	return out
}
