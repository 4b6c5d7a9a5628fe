// Package indicator provides technical indicator calculations over daily
// price series.
//
// Every function is pure: the same series always yields the same value and
// nothing is cached between calls. RSI and ATR use Wilder's smoothing
// seeded with a simple average of the first period.
package indicator

import (
	"errors"
	"fmt"
)

// Default periods used by the market-data cache.
const (
	DefaultRSIPeriod = 14
	DefaultATRPeriod = 14
)

// ErrInsufficientData is returned when a series is shorter than an
// indicator needs.
var ErrInsufficientData = errors.New("insufficient data")

func insufficient(name string, period, need, have int) error {
	return fmt.Errorf("%s(%d): %w: need %d bars, have %d", name, period, ErrInsufficientData, need, have)
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s: period must be positive, got %d", name, period)
	}
	return nil
}

// wilder applies one step of Wilder's recursive smoothing.
func wilder(prev, x float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + x) / p
}
