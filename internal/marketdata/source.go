// Package marketdata serves prices and bar history to the rest of the
// simulator.
//
// A Provider keeps one in-memory Snapshot, swapped atomically as a whole.
// Reads inside the freshness TTL are served from memory and tagged CACHED.
// Older data triggers a live fetch under a timeout; when the live source
// fails the most recent known value is served instead, tagged CACHED with
// its original timestamp. Nothing is ever invented: a symbol no source has
// seen is ErrUnknownSymbol.
package marketdata

import (
	"context"
	"errors"
	"time"

	"tradersim/internal/model"
)

var (
	// ErrUnknownSymbol means no source has data for the symbol.
	ErrUnknownSymbol = errors.New("marketdata: unknown symbol")

	// ErrStaleData is returned instead of a stale quote when the provider
	// is configured to reject stale fallbacks.
	ErrStaleData = errors.New("marketdata: only stale data available")

	// ErrNoData means a refresh produced no symbol at all; the previous
	// snapshot is kept.
	ErrNoData = errors.New("marketdata: refresh fetched no symbols")
)

// LiveSource is an upstream market-data feed. Implementations must honour
// ctx cancellation and return an error wrapping ErrUnknownSymbol for
// symbols they do not carry.
type LiveSource interface {
	// Name identifies the feed in status output and logs.
	Name() string

	// LatestPrice returns the last traded price and its time.
	LatestPrice(ctx context.Context, symbol string) (price float64, at time.Time, err error)

	// DailyBars returns up to days daily bars ending today, ascending.
	DailyBars(ctx context.Context, symbol string, days int) (model.PriceSeries, error)
}

// SessionClock reports whether the market is open.
// markethours.RegularHours satisfies it.
type SessionClock interface {
	IsOpen(t time.Time) bool
}
