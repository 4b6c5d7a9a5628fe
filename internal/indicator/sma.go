package indicator

import "tradersim/internal/model"

// SMA returns the arithmetic mean of the last period closes.
func SMA(series model.PriceSeries, period int) (float64, error) {
	if err := checkPeriod("SMA", period); err != nil {
		return 0, err
	}
	n := len(series.Bars)
	if n < period {
		return 0, insufficient("SMA", period, period, n)
	}
	sum := 0.0
	for _, b := range series.Bars[n-period:] {
		sum += b.Close
	}
	return sum / float64(period), nil
}
