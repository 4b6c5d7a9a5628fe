package indicator

import (
	"math"

	"tradersim/internal/model"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar model.Bar, prevClose float64) float64 {
	return math.Max(bar.High-bar.Low,
		math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}

// ATR calculates the Average True Range. True ranges start at the second
// bar so each has a previous close; the first period of them seed a simple
// average, the rest are Wilder-smoothed. Needs period+1 bars.
func ATR(series model.PriceSeries, period int) (float64, error) {
	if err := checkPeriod("ATR", period); err != nil {
		return 0, err
	}
	bars := series.Bars
	if len(bars) < period+1 {
		return 0, insufficient("ATR", period, period+1, len(bars))
	}

	atr := 0.0
	for i := 1; i < len(bars); i++ {
		tr := TrueRange(bars[i], bars[i-1].Close)
		if i <= period {
			atr += tr
			if i == period {
				atr /= float64(period)
			}
			continue
		}
		atr = wilder(atr, tr, period)
	}
	return atr, nil
}
