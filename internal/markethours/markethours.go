// Package markethours is the US equity session calendar: regular hours,
// weekends and exchange holidays, plus a configurable trading window
// inside the regular session.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // Eastern must load on hosts without zoneinfo
)

// Eastern is the exchange time zone.
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Schedule configures the trading window. Times are HH:MM Eastern.
// TradeDays uses time.Weekday numbering (Sunday = 0).
type Schedule struct {
	MarketOpen           string `yaml:"market_open" json:"market_open"`
	MarketClose          string `yaml:"market_close" json:"market_close"`
	SkipFirstMinutes     int    `yaml:"skip_first_minutes" json:"skip_first_minutes"`
	SkipLastMinutes      int    `yaml:"skip_last_minutes" json:"skip_last_minutes"`
	TradeDays            []int  `yaml:"trade_days" json:"trade_days"`
	CheckIntervalMinutes int    `yaml:"check_interval_minutes" json:"check_interval_minutes"`
}

// DefaultSchedule is 09:30-16:00 Mon-Fri, skipping the first 5 and the
// last 10 minutes, checked every 5 minutes.
func DefaultSchedule() Schedule {
	return Schedule{
		MarketOpen:           "09:30",
		MarketClose:          "16:00",
		SkipFirstMinutes:     5,
		SkipLastMinutes:      10,
		TradeDays:            []int{1, 2, 3, 4, 5},
		CheckIntervalMinutes: 5,
	}
}

// Session answers calendar questions for one Schedule.
type Session struct {
	open, close         int // minutes after midnight
	skipFirst, skipLast int
	days                [7]bool
	interval            time.Duration
}

// NewSession validates s.
func NewSession(s Schedule) (*Session, error) {
	open, err := parseHHMM(s.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("market_open: %w", err)
	}
	cl, err := parseHHMM(s.MarketClose)
	if err != nil {
		return nil, fmt.Errorf("market_close: %w", err)
	}
	if cl <= open {
		return nil, fmt.Errorf("market_close %s must be after market_open %s", s.MarketClose, s.MarketOpen)
	}
	if s.SkipFirstMinutes < 0 || s.SkipLastMinutes < 0 || s.SkipFirstMinutes+s.SkipLastMinutes >= cl-open {
		return nil, fmt.Errorf("skip minutes %d/%d leave no trading window", s.SkipFirstMinutes, s.SkipLastMinutes)
	}
	ss := &Session{
		open:      open,
		close:     cl,
		skipFirst: s.SkipFirstMinutes,
		skipLast:  s.SkipLastMinutes,
		interval:  time.Duration(s.CheckIntervalMinutes) * time.Minute,
	}
	if len(s.TradeDays) == 0 {
		return nil, fmt.Errorf("trade_days is empty")
	}
	for _, d := range s.TradeDays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("trade_days: invalid weekday %d", d)
		}
		ss.days[d] = true
	}
	if ss.interval <= 0 {
		ss.interval = 5 * time.Minute
	}
	return ss, nil
}

// Default returns the session for DefaultSchedule.
func Default() *Session {
	s, err := NewSession(DefaultSchedule())
	if err != nil {
		panic(err)
	}
	return s
}

func parseHHMM(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsTradingDay returns true if t is a configured trade day and not a
// holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	et := t.In(Eastern)
	return s.days[et.Weekday()] && !IsHoliday(et)
}

// IsOpen reports whether t falls inside the trading window: the regular
// session shortened by the skip periods, both ends inclusive.
func (s *Session) IsOpen(t time.Time) bool {
	et := t.In(Eastern)
	if !s.IsTradingDay(et) {
		return false
	}
	from := s.at(et, s.open+s.skipFirst)
	to := s.at(et, s.close-s.skipLast)
	return !et.Before(from) && !et.After(to)
}

// InRegularHours reports whether the exchange itself is open at t.
func (s *Session) InRegularHours(t time.Time) bool {
	et := t.In(Eastern)
	if !s.IsTradingDay(et) {
		return false
	}
	return !et.Before(s.at(et, s.open)) && et.Before(s.at(et, s.close))
}

// Regular adapts the session to a clock that ignores the skip periods.
func (s *Session) Regular() RegularHours { return RegularHours{s} }

// RegularHours is a Session read as plain exchange hours.
type RegularHours struct{ s *Session }

// IsOpen reports whether the exchange is open at t.
func (r RegularHours) IsOpen(t time.Time) bool { return r.s.InRegularHours(t) }

// CheckInterval is how often an unattended caller should poll.
func (s *Session) CheckInterval() time.Duration { return s.interval }

// NextOpen returns the next start of the trading window after t. If t is
// before today's window on a trading day, today's window start is returned.
func (s *Session) NextOpen(t time.Time) time.Time {
	et := t.In(Eastern)
	start := s.at(et, s.open+s.skipFirst)
	if et.Before(start) && s.IsTradingDay(et) {
		return start
	}
	d := et
	for i := 0; i < 14; i++ { // long weekends plus holidays
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 12, 0, 0, 0, Eastern)
		if s.IsTradingDay(d) {
			return s.at(d, s.open+s.skipFirst)
		}
	}
	return s.at(et.AddDate(0, 0, 1), s.open+s.skipFirst)
}

// WindowClose returns the end of the trading window on t's date.
func (s *Session) WindowClose(t time.Time) time.Time {
	return s.at(t.In(Eastern), s.close-s.skipLast)
}

// Status returns a human-readable trading window status.
func (s *Session) Status(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("Trading window open, closes in %s", fmtDur(s.WindowClose(t).Sub(t)))
	}
	next := s.NextOpen(t)
	et := next.In(Eastern)
	return fmt.Sprintf("Trading window closed, opens %s %s ET (%s)",
		et.Weekday().String()[:3], et.Format("15:04"), fmtDur(next.Sub(t)))
}

func (s *Session) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, Eastern)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
