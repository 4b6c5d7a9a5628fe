package analyzer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"tradersim/internal/indicator"
)

// SortKey selects the screen ordering field.
type SortKey string

const (
	SortDaily   SortKey = "daily"
	SortWeekly  SortKey = "weekly"
	SortMonthly SortKey = "monthly"
	SortRSI     SortKey = "rsi"
	SortPrice   SortKey = "price"
	SortVolume  SortKey = "volume"
	SortATR     SortKey = "atr"
)

func (k SortKey) value(a Analysis) float64 {
	switch k {
	case SortWeekly:
		return a.WeeklyChange
	case SortMonthly:
		return a.MonthlyChange
	case SortRSI:
		return a.RSI
	case SortPrice:
		return a.Price
	case SortVolume:
		return float64(a.Volume)
	case SortATR:
		return a.ATR
	default:
		return a.DailyChange
	}
}

func (k SortKey) valid() bool {
	switch k {
	case "", SortDaily, SortWeekly, SortMonthly, SortRSI, SortPrice, SortVolume, SortATR:
		return true
	}
	return false
}

// Criteria are the predicates of a screen, combined with AND. A nil or
// zero field is not applied. Bounds named Above/Below are strict, Min/Max
// are inclusive.
type Criteria struct {
	RSIBelow *float64 `yaml:"rsi_below,omitempty" json:"rsi_below,omitempty"`
	RSIAbove *float64 `yaml:"rsi_above,omitempty" json:"rsi_above,omitempty"`

	// Price must be strictly above / below each listed SMA period.
	AboveSMA []int `yaml:"above_sma,omitempty" json:"above_sma,omitempty"`
	BelowSMA []int `yaml:"below_sma,omitempty" json:"below_sma,omitempty"`

	MinATR    *float64 `yaml:"min_atr,omitempty" json:"min_atr,omitempty"`
	MinVolume int64    `yaml:"min_volume,omitempty" json:"min_volume,omitempty"`
	MinPrice  *float64 `yaml:"min_price,omitempty" json:"min_price,omitempty"`
	MaxPrice  *float64 `yaml:"max_price,omitempty" json:"max_price,omitempty"`

	DailyChangeAbove *float64 `yaml:"daily_change_above,omitempty" json:"daily_change_above,omitempty"`
	DailyChangeBelow *float64 `yaml:"daily_change_below,omitempty" json:"daily_change_below,omitempty"`

	SortBy    SortKey `yaml:"sort_by,omitempty" json:"sort_by,omitempty"`
	Ascending bool    `yaml:"ascending,omitempty" json:"ascending,omitempty"`
	Limit     int     `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// Validate reports every inconsistency in c.
func (c Criteria) Validate() error {
	var errs []error
	for _, b := range []struct {
		name string
		v    *float64
	}{{"rsi_below", c.RSIBelow}, {"rsi_above", c.RSIAbove}} {
		if b.v != nil && (*b.v < 0 || *b.v > 100) {
			errs = append(errs, fmt.Errorf("%s %v outside [0,100]", b.name, *b.v))
		}
	}
	if c.RSIBelow != nil && c.RSIAbove != nil && *c.RSIAbove >= *c.RSIBelow {
		errs = append(errs, fmt.Errorf("rsi_above %v >= rsi_below %v matches nothing", *c.RSIAbove, *c.RSIBelow))
	}
	for _, p := range append(append([]int{}, c.AboveSMA...), c.BelowSMA...) {
		if !knownPeriod(p) {
			errs = append(errs, fmt.Errorf("unsupported SMA period %d (want one of %v)", p, SMAPeriods))
		}
	}
	if c.MinATR != nil && *c.MinATR < 0 {
		errs = append(errs, fmt.Errorf("min_atr %v is negative", *c.MinATR))
	}
	if c.MinVolume < 0 {
		errs = append(errs, fmt.Errorf("min_volume %d is negative", c.MinVolume))
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		errs = append(errs, fmt.Errorf("min_price %v > max_price %v", *c.MinPrice, *c.MaxPrice))
	}
	if !c.SortBy.valid() {
		errs = append(errs, fmt.Errorf("unknown sort key %q", c.SortBy))
	}
	if c.Limit < 0 {
		errs = append(errs, fmt.Errorf("limit %d is negative", c.Limit))
	}
	return errors.Join(errs...)
}

func knownPeriod(p int) bool {
	for _, k := range SMAPeriods {
		if k == p {
			return true
		}
	}
	return false
}

// Screen is a named, validated Criteria.
type Screen struct {
	Name     string
	criteria Criteria
}

// NewScreen validates c.
func NewScreen(name string, c Criteria) (*Screen, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("screen %q: %w", name, err)
	}
	return &Screen{Name: name, criteria: c}, nil
}

// Criteria returns a copy of the screen's criteria.
func (s *Screen) Criteria() Criteria { return s.criteria }

// Required lists the indicators a symbol must have to be screened.
func (s *Screen) Required() []indicator.Name {
	c := s.criteria
	var req []indicator.Name
	if c.RSIBelow != nil || c.RSIAbove != nil || c.SortBy == SortRSI {
		req = append(req, indicator.NameRSI)
	}
	if c.MinATR != nil || c.SortBy == SortATR {
		req = append(req, indicator.NameATR)
	}
	for _, p := range append(append([]int{}, c.AboveSMA...), c.BelowSMA...) {
		req = append(req, indicator.SMAName(p))
	}
	return req
}

// Match reports whether a passes every predicate.
func (s *Screen) Match(a Analysis) bool {
	for _, n := range s.Required() {
		if !a.Has(n) {
			return false
		}
	}
	c := s.criteria
	if c.RSIBelow != nil && !(a.RSI < *c.RSIBelow) {
		return false
	}
	if c.RSIAbove != nil && !(a.RSI > *c.RSIAbove) {
		return false
	}
	for _, p := range c.AboveSMA {
		if v, _ := a.SMA(p); !(a.Price > v) {
			return false
		}
	}
	for _, p := range c.BelowSMA {
		if v, _ := a.SMA(p); !(a.Price < v) {
			return false
		}
	}
	if c.MinATR != nil && a.ATR < *c.MinATR {
		return false
	}
	if a.Volume < c.MinVolume {
		return false
	}
	if c.MinPrice != nil && a.Price < *c.MinPrice {
		return false
	}
	if c.MaxPrice != nil && a.Price > *c.MaxPrice {
		return false
	}
	if c.DailyChangeAbove != nil && !(a.DailyChange > *c.DailyChangeAbove) {
		return false
	}
	if c.DailyChangeBelow != nil && !(a.DailyChange < *c.DailyChangeBelow) {
		return false
	}
	return true
}

// Apply returns the matching analyses ordered by the sort key (default
// daily change descending), ties broken by symbol. No match is an empty,
// non-nil result.
func (s *Screen) Apply(analyses []Analysis) []Analysis {
	out := make([]Analysis, 0)
	for _, a := range analyses {
		if s.Match(a) {
			out = append(out, a)
		}
	}
	key, asc := s.criteria.SortBy, s.criteria.Ascending
	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := key.value(out[i]), key.value(out[j])
		if vi != vj {
			if asc {
				return vi < vj
			}
			return vi > vj
		}
		return out[i].Symbol < out[j].Symbol
	})
	if s.criteria.Limit > 0 && len(out) > s.criteria.Limit {
		out = out[:s.criteria.Limit]
	}
	return out
}

func ptr(v float64) *float64 { return &v }

// presets are the built-in screens.
var presets = map[string]Criteria{
	// Liquid, affordable names that move enough to trade.
	"default":    {MinATR: ptr(1), MinVolume: 500_000, MinPrice: ptr(1), MaxPrice: ptr(500)},
	"oversold":   {RSIBelow: ptr(30), SortBy: SortRSI, Ascending: true},
	"overbought": {RSIAbove: ptr(70), SortBy: SortRSI},
	"uptrend":    {AboveSMA: []int{20, 50}, SortBy: SortMonthly},
	"momentum":   {AboveSMA: []int{20}, DailyChangeAbove: ptr(0), MinVolume: 500_000},
}

// Preset returns a built-in screen by name.
func Preset(name string) (*Screen, error) {
	c, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown screen %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	return NewScreen(strings.ToLower(name), c)
}

// PresetNames lists built-in screens, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
