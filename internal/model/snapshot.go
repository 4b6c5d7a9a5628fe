package model

import "time"

// StockData is the per-symbol record of the market-data cache.
type StockData struct {
	Price         float64 `json:"price"`
	DailyChange   float64 `json:"daily_change"`
	WeeklyChange  float64 `json:"weekly_change"`
	MonthlyChange float64 `json:"monthly_change"`
	RSI           float64 `json:"rsi"`
	ATR           float64 `json:"atr"`
	SMA10         float64 `json:"sma_10"`
	SMA20         float64 `json:"sma_20"`
	SMA50         float64 `json:"sma_50"`
	Volume        int64   `json:"volume"`
	AboveSMA10    bool    `json:"above_sma_10"`
	AboveSMA20    bool    `json:"above_sma_20"`
	AboveSMA50    bool    `json:"above_sma_50"`

	// Unavailable names the indicators the history was too short for, e.g.
	// "rsi". Their fields above are zero. Nil in records written before the
	// list existed.
	Unavailable []string `json:"unavailable"`
}

// Snapshot is one generation of cached market data. All symbols share the
// same Timestamp; a snapshot is replaced as a whole, never merged.
type Snapshot struct {
	Timestamp        int64                `json:"timestamp"` // unix seconds
	GeneratedAt      string               `json:"generated_at"`
	MarketOpen       bool                 `json:"market_open"`
	FetchTimeSeconds float64              `json:"fetch_time_seconds"`
	StocksFetched    int                  `json:"stocks_fetched"`
	StocksFailed     []string             `json:"stocks_failed"`
	Stocks           map[string]StockData `json:"stocks"`

	// Series holds the bars the snapshot was computed from. It is kept in
	// memory only and never serialized.
	Series map[string]PriceSeries `json:"-"`
}

// Time returns the snapshot generation time.
func (s *Snapshot) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// Age returns the snapshot age at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Time())
}

// Stock returns the record for symbol.
func (s *Snapshot) Stock(symbol string) (StockData, bool) {
	if s == nil {
		return StockData{}, false
	}
	d, ok := s.Stocks[symbol]
	return d, ok
}
