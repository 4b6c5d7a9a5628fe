package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradersim/internal/indicator"
	"tradersim/internal/model"
)

type fetched struct {
	symbol string
	data   model.StockData
	series model.PriceSeries
	err    error
}

// Refresh fetches the whole universe live, profiles every symbol and swaps
// the result in as one new snapshot, saving it to the snapshot store.
// Symbols that fail are listed in StocksFailed. When nothing could be
// fetched the current snapshot is kept and ErrNoData is returned.
func (p *Provider) Refresh(ctx context.Context) (*model.Snapshot, error) {
	if p.live == nil {
		return nil, fmt.Errorf("refresh: %w", errNoLive)
	}
	if len(p.cfg.Universe) == 0 {
		return nil, fmt.Errorf("refresh: empty universe")
	}
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	start := time.Now()
	results := p.fetchUniverse(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	now := p.now().UTC()
	snap := &model.Snapshot{
		Timestamp:    now.Unix(),
		GeneratedAt:  now.Format(time.RFC3339),
		StocksFailed: []string{},
		Stocks:       make(map[string]model.StockData, len(results)),
		Series:       make(map[string]model.PriceSeries, len(results)),
	}
	if p.session != nil {
		snap.MarketOpen = p.session.IsOpen(now)
	}
	for _, r := range results {
		if r.err != nil {
			snap.StocksFailed = append(snap.StocksFailed, r.symbol)
			p.log.Warn("refresh symbol failed", "symbol", r.symbol, "error", r.err)
			continue
		}
		snap.Stocks[r.symbol] = r.data
		snap.Series[r.symbol] = r.series
	}
	sort.Strings(snap.StocksFailed)
	snap.StocksFetched = len(snap.Stocks)
	snap.FetchTimeSeconds = roundSeconds(time.Since(start))

	p.metrics.ObserveRefresh(time.Since(start).Seconds(), len(snap.StocksFailed))

	if snap.StocksFetched == 0 {
		return nil, fmt.Errorf("refresh: %d symbols failed: %w", len(snap.StocksFailed), ErrNoData)
	}

	p.Install(snap)
	if p.store != nil {
		if err := p.store.SaveSnapshot(ctx, snap); err != nil {
			p.log.Error("snapshot store write failed", "error", err)
			return snap, fmt.Errorf("refresh: save snapshot: %w", err)
		}
	}
	p.log.Info("refresh complete",
		"fetched", snap.StocksFetched,
		"failed", len(snap.StocksFailed),
		"market_open", snap.MarketOpen,
		"seconds", snap.FetchTimeSeconds,
	)
	return snap, nil
}

// fetchUniverse fetches every symbol with at most cfg.Workers in flight.
// Results keep universe order.
func (p *Provider) fetchUniverse(ctx context.Context) []fetched {
	universe := p.cfg.Universe
	results := make([]fetched, len(universe))
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup

	for i, sym := range universe {
		i, sym := i, normalize(sym)
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = fetched{symbol: sym, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			results[i] = p.fetchOne(ctx, sym)
		}()
	}
	wg.Wait()
	return results
}

func (p *Provider) fetchOne(ctx context.Context, symbol string) fetched {
	r := fetched{symbol: symbol}
	ser, err := p.liveBars(ctx, symbol, p.cfg.HistoryDays)
	if err != nil {
		r.err = err
		return r
	}

	// The latest trade is preferred; the last close is good enough when it
	// cannot be had.
	price, _, err := p.livePrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			r.err = err
			return r
		}
		price = 0
	}

	prof, err := indicator.Compute(ser, price)
	if err != nil {
		r.err = err
		return r
	}
	p.writeSeries(ctx, ser)
	r.data = prof.Data
	r.series = ser
	return r
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond).Milliseconds()) / 1000
}

// Run refreshes immediately and then every interval until ctx is done.
// onRefresh, when set, observes every outcome. With MarketHoursOnly, ticks
// that fall outside the session are skipped and not reported.
func (p *Provider) Run(ctx context.Context, interval time.Duration, onRefresh func(*model.Snapshot, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if p.cfg.MarketHoursOnly && p.session != nil && !p.session.IsOpen(p.now()) {
			p.log.Debug("market closed, refresh skipped")
		} else {
			snap, err := p.Refresh(ctx)
			if err != nil && ctx.Err() == nil {
				p.log.Error("refresh failed", "error", err)
			}
			if onRefresh != nil && ctx.Err() == nil {
				onRefresh(snap, err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
