// Package analyzer ranks and screens the symbol universe from indicator
// profiles.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"tradersim/internal/indicator"
	"tradersim/internal/model"
)

// DefaultLookback is the number of daily bars requested per symbol.
const DefaultLookback = 90

// MarketData is what the analyzer reads. *marketdata.Provider satisfies it.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (model.PriceQuote, error)
	Series(ctx context.Context, symbol string, lookback int) (model.PriceSeries, error)
}

// Analysis is the indicator profile of one symbol at one price.
type Analysis struct {
	Symbol string `json:"symbol"`
	model.StockData

	Source model.Source `json:"source,omitempty"`
	AsOf   time.Time    `json:"as_of"`
	Stale  bool         `json:"stale,omitempty"`

	// Missing lists indicators the history was too short for.
	Missing map[indicator.Name]bool `json:"-"`
}

// Has reports whether indicator n is available.
func (a Analysis) Has(n indicator.Name) bool { return !a.Missing[n] }

// SMA returns the moving average for period and whether it exists.
func (a Analysis) SMA(period int) (float64, bool) {
	if !a.Has(indicator.SMAName(period)) {
		return 0, false
	}
	switch period {
	case 10:
		return a.SMA10, true
	case 20:
		return a.SMA20, true
	case 50:
		return a.SMA50, true
	}
	return 0, false
}

// Signal classifies RSI: OVERSOLD below 30, OVERBOUGHT above 70.
func (a Analysis) Signal() string {
	if !a.Has(indicator.NameRSI) {
		return ""
	}
	switch {
	case a.RSI < 30:
		return "OVERSOLD"
	case a.RSI > 70:
		return "OVERBOUGHT"
	}
	return ""
}

// Trend lists the moving averages price is above.
func (a Analysis) Trend() string {
	var parts []string
	for _, p := range SMAPeriods {
		if v, ok := a.SMA(p); ok && a.Price > v {
			parts = append(parts, fmt.Sprintf("above SMA%d", p))
		}
	}
	if len(parts) == 0 {
		return "below all SMAs"
	}
	return strings.Join(parts, ", ")
}

// SMAPeriods are the moving averages every profile carries.
var SMAPeriods = []int{10, 20, 50}

// Analyzer profiles symbols through a market-data provider.
type Analyzer struct {
	md       MarketData
	lookback int
	log      *slog.Logger
}

// New creates an analyzer. A nil logger uses slog.Default().
func New(md MarketData, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{md: md, lookback: DefaultLookback, log: logger.With("component", "analyzer")}
}

// AnalyzeSymbol profiles one symbol at its current quote.
func (a *Analyzer) AnalyzeSymbol(ctx context.Context, symbol string) (Analysis, error) {
	q, err := a.md.Quote(ctx, symbol)
	if err != nil {
		return Analysis{}, err
	}
	ser, err := a.md.Series(ctx, q.Symbol, a.lookback)
	if err != nil {
		return Analysis{}, err
	}
	price, _ := q.Price.Float64()
	prof, err := indicator.Compute(ser, price)
	if err != nil {
		return Analysis{}, fmt.Errorf("%s: %w", q.Symbol, err)
	}
	return Analysis{
		Symbol:    q.Symbol,
		StockData: prof.Data,
		Source:    q.Source,
		AsOf:      q.AsOf,
		Stale:     q.Stale,
		Missing:   prof.Missing,
	}, nil
}

// Analyze profiles every symbol, skipping the ones that fail. Only a done
// context aborts the whole analysis.
func (a *Analyzer) Analyze(ctx context.Context, symbols []string) ([]Analysis, error) {
	out := make([]Analysis, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		an, err := a.AnalyzeSymbol(ctx, sym)
		if err != nil {
			a.log.Warn("symbol skipped", "symbol", sym, "error", err)
			continue
		}
		out = append(out, an)
	}
	return out, nil
}

// FromSnapshot builds analyses from a cache record without I/O, sorted by
// symbol. Indicators listed in a record's Unavailable are missing. Records
// without the list fall back to treating zero indicator values as missing.
func FromSnapshot(s *model.Snapshot) []Analysis {
	if s == nil {
		return nil
	}
	out := make([]Analysis, 0, len(s.Stocks))
	for sym, d := range s.Stocks {
		missing := make(map[indicator.Name]bool)
		for _, name := range d.Unavailable {
			missing[indicator.Name(name)] = true
		}
		if d.Unavailable == nil {
			for name, v := range map[indicator.Name]float64{
				indicator.NameSMA10: d.SMA10,
				indicator.NameSMA20: d.SMA20,
				indicator.NameSMA50: d.SMA50,
				indicator.NameRSI:   d.RSI,
				indicator.NameATR:   d.ATR,
			} {
				if v == 0 {
					missing[name] = true
				}
			}
		}
		out = append(out, Analysis{
			Symbol:    sym,
			StockData: d,
			Source:    model.SourceCached,
			AsOf:      s.Time(),
			Missing:   missing,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Movers returns the n best and n worst symbols by daily change. Gainers
// are sorted descending, losers ascending; ties break by symbol.
func Movers(analyses []Analysis, n int) (gainers, losers []Analysis) {
	sorted := make([]Analysis, len(analyses))
	copy(sorted, analyses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DailyChange != sorted[j].DailyChange {
			return sorted[i].DailyChange > sorted[j].DailyChange
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})
	if n > len(sorted) || n <= 0 {
		n = len(sorted)
	}
	gainers = append(gainers, sorted[:n]...)
	for i := len(sorted) - 1; i >= len(sorted)-n; i-- {
		losers = append(losers, sorted[i])
	}
	return gainers, losers
}

// Summary is the market overview.
type Summary struct {
	StocksAnalyzed int        `json:"stocks_analyzed"`
	AvgDailyChange float64    `json:"avg_daily_change"`
	AvgRSI         float64    `json:"avg_rsi"`
	TopGainers     []Analysis `json:"top_gainers"`
	TopLosers      []Analysis `json:"top_losers"`
}

// Summarize averages daily change and RSI over the analyses and lists the
// top n movers. Symbols without RSI are left out of the RSI average.
func Summarize(analyses []Analysis, n int) Summary {
	s := Summary{StocksAnalyzed: len(analyses)}
	if len(analyses) == 0 {
		return s
	}
	var change, rsi float64
	var rsiCount int
	for _, a := range analyses {
		change += a.DailyChange
		if a.Has(indicator.NameRSI) {
			rsi += a.RSI
			rsiCount++
		}
	}
	s.AvgDailyChange = round2(change / float64(len(analyses)))
	if rsiCount > 0 {
		s.AvgRSI = round2(rsi / float64(rsiCount))
	}
	s.TopGainers, s.TopLosers = Movers(analyses, n)
	return s
}

// Prices maps symbol to price.
func Prices(analyses []Analysis) map[string]float64 {
	out := make(map[string]float64, len(analyses))
	for _, a := range analyses {
		out[a.Symbol] = a.Price
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
