package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tells where a quote came from.
type Source string

const (
	SourceLive   Source = "LIVE"
	SourceCached Source = "CACHED"
)

// PriceQuote is the price used to value or execute a trade.
// AsOf is the generation time of the data, not the time of the call; a
// CACHED quote served past the provider TTL carries Stale=true.
type PriceQuote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
	Source Source          `json:"source"`
	Stale  bool            `json:"stale,omitempty"`
}

// Age returns how old the quote data is at now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.AsOf)
}
