package model

import "time"

// Bar is one daily OHLCV bar. Prices are plain float64 dollars; indicator
// math runs on floats, money on decimals.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is the bar history of one symbol, ascending by timestamp.
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.Bars) }

// Closes returns the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar. ok is false for an empty series.
func (s PriceSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Tail returns a series holding only the last n bars. n <= 0 or n larger
// than the series returns the full series.
func (s PriceSeries) Tail(n int) PriceSeries {
	if n <= 0 || n >= len(s.Bars) {
		return s
	}
	bars := make([]Bar, n)
	copy(bars, s.Bars[len(s.Bars)-n:])
	return PriceSeries{Symbol: s.Symbol, Bars: bars}
}
