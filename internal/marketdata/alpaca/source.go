// Package alpaca is the live market-data source backed by the Alpaca
// market data API.
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	md "tradersim/internal/marketdata"
	"tradersim/internal/model"
)

// client is the subset of *marketdata.Client the source uses.
type client interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Config holds API credentials. Empty keys fall back to the SDK's own
// APCA_API_KEY_ID / APCA_API_SECRET_KEY environment lookup.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string // "iex" (free) or "sip"
}

// Source implements the provider's LiveSource.
type Source struct {
	api  client
	feed marketdata.Feed
	now  func() time.Time
}

var _ md.LiveSource = (*Source)(nil)

// New returns an Alpaca source.
func New(cfg Config) *Source {
	feed := marketdata.IEX
	if cfg.Feed != "" {
		feed = marketdata.Feed(cfg.Feed)
	}
	return &Source{
		api: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
			Feed:      feed,
		}),
		feed: feed,
		now:  time.Now,
	}
}

func (s *Source) Name() string { return "alpaca/" + string(s.feed) }

// LatestPrice returns the last trade.
func (s *Source) LatestPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	var trade *marketdata.Trade
	err := run(ctx, func() error {
		var err error
		trade, err = s.api.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: s.feed})
		return err
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("alpaca latest trade %s: %w", symbol, err)
	}
	if trade == nil {
		return 0, time.Time{}, fmt.Errorf("alpaca latest trade %s: %w", symbol, md.ErrUnknownSymbol)
	}
	return trade.Price, trade.Timestamp, nil
}

// DailyBars returns up to days daily bars. The request window is padded
// for weekends and holidays and then trimmed.
func (s *Source) DailyBars(ctx context.Context, symbol string, days int) (model.PriceSeries, error) {
	start := s.now().AddDate(0, 0, -(days*7/5 + 10))
	var raw []marketdata.Bar
	err := run(ctx, func() error {
		var err error
		raw, err = s.api.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      start,
			Feed:       s.feed,
			Adjustment: marketdata.Split,
		})
		return err
	})
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("alpaca bars %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return model.PriceSeries{}, fmt.Errorf("alpaca bars %s: %w", symbol, md.ErrUnknownSymbol)
	}
	if len(raw) > days {
		raw = raw[len(raw)-days:]
	}

	out := model.PriceSeries{Symbol: symbol, Bars: make([]model.Bar, 0, len(raw))}
	for _, b := range raw {
		out.Bars = append(out.Bars, model.Bar{
			TS:     b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

// run executes a blocking SDK call, returning early when ctx is done. The
// SDK takes no context, so an abandoned call finishes in the background.
func run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
