package indicator

import "tradersim/internal/model"

// RSI calculates the Relative Strength Index of the series using Wilder's
// smoothing. The first period close-to-close deltas seed avgGain/avgLoss
// with a simple mean; every later delta is folded in with
// avg = (prev*(period-1) + x) / period. Needs period+1 bars.
//
// When avgLoss is 0 the result is 100, including a perfectly flat series.
func RSI(series model.PriceSeries, period int) (float64, error) {
	if err := checkPeriod("RSI", period); err != nil {
		return 0, err
	}
	bars := series.Bars
	if len(bars) < period+1 {
		return 0, insufficient("RSI", period, period+1, len(bars))
	}

	var avgGain, avgLoss float64
	for i := 1; i < len(bars); i++ {
		gain, loss := 0.0, 0.0
		if delta := bars[i].Close - bars[i-1].Close; delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if i <= period {
			avgGain += gain
			avgLoss += loss
			if i == period {
				avgGain /= float64(period)
				avgLoss /= float64(period)
			}
			continue
		}
		avgGain = wilder(avgGain, gain, period)
		avgLoss = wilder(avgLoss, loss, period)
	}
	return rsiValue(avgGain, avgLoss), nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
