package indicator

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"tradersim/internal/model"
)

// Name identifies one computed field of a profile.
type Name string

const (
	NameSMA10 Name = "sma_10"
	NameSMA20 Name = "sma_20"
	NameSMA50 Name = "sma_50"
	NameRSI   Name = "rsi"
	NameATR   Name = "atr"
)

// SMAName returns the profile name of an SMA period, e.g. "sma_20".
func SMAName(period int) Name {
	return Name(fmt.Sprintf("sma_%d", period))
}

// Lookbacks in bars for the percentage changes.
const (
	dailyLookback   = 2
	weeklyLookback  = 5
	monthlyLookback = 20
	volumeWindow    = 20
)

// Profile is the cache record of one symbol plus the set of indicators the
// series was too short to compute. Missing fields are zero in Data and
// listed in Data.Unavailable.
type Profile struct {
	Data    model.StockData
	Missing map[Name]bool
}

// Has reports whether name was computed.
func (p Profile) Has(name Name) bool {
	return !p.Missing[name]
}

// Compute profiles a series at the given current price. A non-positive
// price falls back to the last close. Fields are rounded to cents / two
// decimals like the published cache. At least two bars are required.
func Compute(series model.PriceSeries, price float64) (Profile, error) {
	bars := series.Bars
	if len(bars) < dailyLookback {
		return Profile{}, insufficient("profile", dailyLookback, dailyLookback, len(bars))
	}
	closes := series.Closes()
	if price <= 0 {
		price = closes[len(closes)-1]
	}

	p := Profile{Missing: make(map[Name]bool)}
	d := &p.Data
	d.Price = round2(price)
	d.DailyChange = round2(changeFrom(closes, dailyLookback, price))
	d.WeeklyChange = round2(changeFrom(closes, weeklyLookback, price))
	d.MonthlyChange = round2(changeFrom(closes, monthlyLookback, price))

	smas := []struct {
		period int
		name   Name
		value  *float64
		above  *bool
	}{
		{10, NameSMA10, &d.SMA10, &d.AboveSMA10},
		{20, NameSMA20, &d.SMA20, &d.AboveSMA20},
		{50, NameSMA50, &d.SMA50, &d.AboveSMA50},
	}
	for _, s := range smas {
		v, err := SMA(series, s.period)
		if err != nil {
			if !errors.Is(err, ErrInsufficientData) {
				return Profile{}, err
			}
			p.Missing[s.name] = true
			continue
		}
		*s.value = round2(v)
		*s.above = price > v
	}

	if v, err := RSI(series, DefaultRSIPeriod); err == nil {
		d.RSI = round2(v)
	} else {
		p.Missing[NameRSI] = true
	}
	if v, err := ATR(series, DefaultATRPeriod); err == nil {
		d.ATR = round2(v)
	} else {
		p.Missing[NameATR] = true
	}

	d.Volume = averageVolume(bars, volumeWindow)
	d.Unavailable = make([]string, 0, len(p.Missing))
	for name := range p.Missing {
		d.Unavailable = append(d.Unavailable, string(name))
	}
	sort.Strings(d.Unavailable)
	return p, nil
}

// changeFrom returns the % change of price against the close lookback bars
// from the end (lookback 2 = previous close). Short series return 0.
func changeFrom(closes []float64, lookback int, price float64) float64 {
	if len(closes) < lookback {
		return 0
	}
	base := closes[len(closes)-lookback]
	if base == 0 {
		return 0
	}
	return (price - base) / base * 100
}

func averageVolume(bars []model.Bar, window int) int64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) < window {
		window = len(bars)
	}
	var sum int64
	for _, b := range bars[len(bars)-window:] {
		sum += b.Volume
	}
	return sum / int64(window)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
