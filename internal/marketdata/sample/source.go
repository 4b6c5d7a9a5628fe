// Package sample is an offline market-data source generating deterministic
// random-walk history, for demos and for running without network access.
package sample

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"tradersim/internal/marketdata"
	"tradersim/internal/model"
)

// BasePrices seeds the walk for well-known symbols; others start at 100.
var BasePrices = map[string]float64{
	"AAPL": 250.00, "MSFT": 420.00, "GOOGL": 195.00, "AMZN": 225.00, "NVDA": 140.00,
	"META": 600.00, "JPM": 245.00, "BAC": 46.00, "V": 315.00, "WMT": 92.00,
	"KO": 63.00, "PEP": 152.00, "MCD": 295.00, "JNJ": 145.00, "UNH": 525.00,
	"PFE": 26.00, "XOM": 108.00, "CVX": 150.00, "SPY": 600.00, "QQQ": 525.00,
}

const (
	defaultBase = 100.0

	// span is the length of the generated walk. Shorter requests are cut
	// from its end so every lookback agrees on recent prices.
	span = 260
)

// Source implements marketdata.LiveSource. The same seed, symbol and day
// always produce the same bars.
type Source struct {
	seed int64
	now  func() time.Time
}

var _ marketdata.LiveSource = (*Source)(nil)

// New returns a sample source.
func New(seed int64) *Source {
	return &Source{seed: seed, now: time.Now}
}

func (s *Source) Name() string { return "sample" }

// LatestPrice returns the last generated close.
func (s *Source) LatestPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	ser, err := s.DailyBars(ctx, symbol, span)
	if err != nil {
		return 0, time.Time{}, err
	}
	last, _ := ser.Last()
	return last.Close, s.now().UTC(), nil
}

// DailyBars returns days business-day bars ending today.
func (s *Source) DailyBars(ctx context.Context, symbol string, days int) (model.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return model.PriceSeries{}, err
	}
	if days <= 0 {
		days = marketdata.DefaultHistoryDays
	}
	n := span
	if days > n {
		n = days
	}
	dates := businessDays(s.now().UTC(), n)
	rng := rand.New(rand.NewSource(s.seed ^ symbolSeed(symbol) ^ dates[len(dates)-1].Unix()))

	base, ok := BasePrices[symbol]
	if !ok {
		base = defaultBase
	}

	out := model.PriceSeries{Symbol: symbol, Bars: make([]model.Bar, 0, n)}
	price := base
	for i, d := range dates {
		if i > 0 {
			price *= 1 + rng.NormFloat64()*0.015 + 0.0005
		}
		out.Bars = append(out.Bars, model.Bar{
			TS:     d,
			Open:   round2(price * (0.995 + rng.Float64()*0.01)),
			High:   round2(price * (1 + rng.Float64()*0.02)),
			Low:    round2(price * (0.98 + rng.Float64()*0.02)),
			Close:  round2(price),
			Volume: int64(5e6 + rng.Float64()*45e6),
		})
	}
	return out.Tail(days), nil
}

// businessDays returns n weekdays ending at or before end, ascending, each
// stamped at the 16:00 ET close (21:00 UTC).
func businessDays(end time.Time, n int) []time.Time {
	d := time.Date(end.Year(), end.Month(), end.Day(), 21, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := n - 1; i >= 0; {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = d
			i--
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
