package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/indicator"
	"tradersim/internal/model"
)

type fakeMarket struct {
	prices map[string]float64
	series map[string]model.PriceSeries
}

var errUnknown = errors.New("unknown symbol")

func (f *fakeMarket) Quote(_ context.Context, symbol string) (model.PriceQuote, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return model.PriceQuote{}, fmt.Errorf("%s: %w", symbol, errUnknown)
	}
	return model.PriceQuote{Symbol: symbol, Price: decimal.NewFromFloat(p), Source: model.SourceCached,
		AsOf: time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeMarket) Series(_ context.Context, symbol string, lookback int) (model.PriceSeries, error) {
	s, ok := f.series[symbol]
	if !ok {
		return model.PriceSeries{}, errUnknown
	}
	return s.Tail(lookback), nil
}

func linear(symbol string, n int, start, step float64) model.PriceSeries {
	s := model.PriceSeries{Symbol: symbol}
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		s.Bars = append(s.Bars, model.Bar{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1_000_000})
	}
	return s
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func TestAnalyze_SkipsFailingSymbols(t *testing.T) {
	md := &fakeMarket{
		prices: map[string]float64{"UP": 159, "DOWN": 41, "NOBARS": 10},
		series: map[string]model.PriceSeries{
			"UP":   linear("UP", 60, 100, 1),
			"DOWN": linear("DOWN", 60, 100, -1),
		},
	}
	out, err := New(md, nil).Analyze(context.Background(), []string{"UP", "GHOST", "DOWN", "NOBARS"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Symbol != "UP" || out[1].Symbol != "DOWN" {
		t.Fatalf("got %+v", out)
	}
	assertClose(t, "UP rsi", out[0].RSI, 100, 0.001)
	assertClose(t, "DOWN rsi", out[1].RSI, 0, 0.001)
	if out[0].Trend() != "above SMA10, above SMA20, above SMA50" {
		t.Errorf("trend = %q", out[0].Trend())
	}
	if out[1].Trend() != "below all SMAs" || out[1].Signal() != "OVERSOLD" {
		t.Errorf("DOWN trend=%q signal=%q", out[1].Trend(), out[1].Signal())
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&fakeMarket{}, nil).Analyze(ctx, []string{"A"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func sampleAnalyses() []Analysis {
	mk := func(sym string, price, daily, rsi, atr, sma20, sma50 float64, vol int64) Analysis {
		return Analysis{
			Symbol: sym,
			StockData: model.StockData{
				Price: price, DailyChange: daily, RSI: rsi, ATR: atr,
				SMA10: price, SMA20: sma20, SMA50: sma50, Volume: vol,
			},
			Missing: map[indicator.Name]bool{},
		}
	}
	short := mk("NEWCO", 12, 9.5, 0, 0, 11, 0, 2_000_000)
	short.Missing = map[indicator.Name]bool{indicator.NameSMA50: true, indicator.NameRSI: true, indicator.NameATR: true}
	return []Analysis{
		mk("PLTR", 22.5, -0.75, 28.9, 1.1, 24, 21.7, 900_000),
		mk("NVDA", 140.12, 1.25, 61.37, 4.2, 135.25, 130.1, 41_000_000),
		mk("GME", 18, -6.1, 19.5, 2.3, 25, 28, 12_000_000),
		mk("SNDL", 0.9, 3.3, 45, 0.05, 0.8, 0.7, 30_000_000),
		mk("META", 600, 0.4, 74.2, 12.8, 580, 560, 15_000_000),
		short,
	}
}

func symbols(as []Analysis) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Symbol
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMovers(t *testing.T) {
	gainers, losers := Movers(sampleAnalyses(), 2)
	if got := symbols(gainers); !equalStrings(got, []string{"NEWCO", "SNDL"}) {
		t.Errorf("gainers = %v", got)
	}
	if got := symbols(losers); !equalStrings(got, []string{"GME", "PLTR"}) {
		t.Errorf("losers = %v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleAnalyses(), 3)
	if s.StocksAnalyzed != 6 {
		t.Errorf("analyzed = %d", s.StocksAnalyzed)
	}
	// (-0.75 + 1.25 - 6.1 + 3.3 + 0.4 + 9.5) / 6 = 1.2667
	assertClose(t, "avg daily", s.AvgDailyChange, 1.27, 0.0001)
	// NEWCO has no RSI: (28.9 + 61.37 + 19.5 + 45 + 74.2) / 5 = 45.794
	assertClose(t, "avg rsi", s.AvgRSI, 45.79, 0.0001)
	if len(s.TopGainers) != 3 || len(s.TopLosers) != 3 {
		t.Errorf("movers: %d / %d", len(s.TopGainers), len(s.TopLosers))
	}
}

func TestSummarize_Empty(t *testing.T) {
	if s := Summarize(nil, 3); s.StocksAnalyzed != 0 || s.TopGainers != nil {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestFromSnapshot(t *testing.T) {
	snap := &model.Snapshot{
		Timestamp: 1767363000,
		Stocks: map[string]model.StockData{
			"B": {Price: 10, SMA10: 9, SMA20: 8, SMA50: 0, ATR: 0.5},
			"A": {Price: 5, SMA10: 4, SMA20: 4, SMA50: 4, ATR: 0.2},
		},
	}
	out := FromSnapshot(snap)
	if len(out) != 2 || out[0].Symbol != "A" {
		t.Fatalf("got %v", symbols(out))
	}
	if out[1].Has(indicator.NameSMA50) {
		t.Error("zero SMA50 should be treated as missing")
	}
	if !out[0].AsOf.Equal(time.Unix(1767363000, 0)) || out[0].Source != model.SourceCached {
		t.Errorf("as_of/source = %v/%v", out[0].AsOf, out[0].Source)
	}
	if FromSnapshot(nil) != nil {
		t.Error("nil snapshot should give nil")
	}
}

func TestFromSnapshot_UsesRecordedUnavailable(t *testing.T) {
	snap := &model.Snapshot{
		Timestamp: 1767363000,
		Stocks: map[string]model.StockData{
			"NEW":  {Price: 10, SMA10: 9.5, Unavailable: []string{"atr", "rsi", "sma_20", "sma_50"}},
			"FLAT": {Price: 10, SMA10: 10, SMA20: 10, SMA50: 10, ATR: 0.5, Unavailable: []string{}},
		},
	}
	out := FromSnapshot(snap)
	if len(out) != 2 {
		t.Fatalf("got %v", symbols(out))
	}
	flat, fresh := out[0], out[1]
	if !flat.Has(indicator.NameRSI) {
		t.Error("recorded rsi of 0 should count as computed")
	}
	if fresh.Has(indicator.NameRSI) || fresh.Has(indicator.NameATR) || !fresh.Has(indicator.NameSMA10) {
		t.Errorf("missing = %v", fresh.Missing)
	}
}
