package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/metrics"
	"tradersim/internal/model"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTTL             = 600 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
	DefaultHistoryDays     = 90
	DefaultWorkers         = 4
	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 5 * time.Minute
)

// Config tunes a Provider.
type Config struct {
	TTL          time.Duration // freshness window of the in-memory snapshot
	FetchTimeout time.Duration // bound on every live call
	HistoryDays  int           // bars requested per live series fetch
	Universe     []string      // symbols fetched by Refresh
	Workers      int           // concurrent live fetches during Refresh

	// RejectStale turns the stale fallback into ErrStaleData.
	RejectStale bool

	// MarketHoursOnly makes Run skip ticks while the session is closed.
	MarketHoursOnly bool

	BreakerFailures int
	BreakerReset    time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = DefaultHistoryDays
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = DefaultBreakerReset
	}
	return c
}

// Deps are the collaborators of a Provider. Every field is optional; a nil
// Live runs the provider offline on stored data.
type Deps struct {
	Live    LiveSource
	Store   model.SnapshotStore
	Series  model.SeriesCache
	Session SessionClock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// seen is the last value observed for a symbol from any source.
type seen struct {
	price  float64
	asOf   time.Time
	series model.PriceSeries
}

// Provider is the MarketDataProvider. It is safe for concurrent use.
type Provider struct {
	cfg     Config
	live    LiveSource
	store   model.SnapshotStore
	series  model.SeriesCache
	session SessionClock
	breaker *Breaker
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	snap atomic.Pointer[model.Snapshot]

	mu   sync.RWMutex
	last map[string]seen

	refreshMu sync.Mutex // one Refresh at a time
}

// New creates a provider.
func New(cfg Config, deps Deps) *Provider {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Provider{
		cfg:     cfg,
		live:    deps.Live,
		store:   deps.Store,
		series:  deps.Series,
		session: deps.Session,
		breaker: NewBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		metrics: deps.Metrics,
		log:     log.With("component", "marketdata"),
		now:     time.Now,
		last:    make(map[string]seen),
	}
	p.breaker.OnStateChange = func(from, to BreakerState) {
		p.log.Warn("live source breaker transition", "from", from.String(), "to", to.String())
		p.metrics.SetBreakerState(int(to), to == BreakerOpen)
	}
	return p
}

// Install replaces the in-memory snapshot. Used when loading a snapshot
// from storage at startup and by Refresh.
func (p *Provider) Install(s *model.Snapshot) {
	if s == nil {
		return
	}
	p.mu.Lock()
	asOf := s.Time()
	for sym, d := range s.Stocks {
		prev := p.last[sym]
		if !prev.asOf.After(asOf) {
			prev.price = d.Price
			prev.asOf = asOf
		}
		if ser, ok := s.Series[sym]; ok && ser.Len() > 0 {
			prev.series = ser
		}
		p.last[sym] = prev
	}
	p.mu.Unlock()
	p.snap.Store(s)
}

// Snapshot returns the current in-memory snapshot, or nil.
// Callers must treat it as read-only.
func (p *Provider) Snapshot() *model.Snapshot {
	return p.snap.Load()
}

// Warm loads the stored snapshot, if any, regardless of its age. It gives
// an offline process something to fall back on.
func (p *Provider) Warm(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	s, err := p.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("warm from store: %w", err)
	}
	if s != nil {
		p.adopt(s)
	}
	return nil
}

func (p *Provider) fresh(s *model.Snapshot, now time.Time) bool {
	return s != nil && s.Age(now) < p.cfg.TTL
}

// adopt installs s when it is newer than the current snapshot.
func (p *Provider) adopt(s *model.Snapshot) bool {
	cur := p.snap.Load()
	if cur != nil && cur.Timestamp >= s.Timestamp {
		return false
	}
	p.Install(s)
	p.log.Debug("adopted stored snapshot", "generated_at", s.GeneratedAt, "stocks", len(s.Stocks))
	return true
}

// freshSnapshot returns a snapshot younger than the TTL, adopting the
// stored one when the in-memory copy is stale. nil when neither is fresh.
func (p *Provider) freshSnapshot(ctx context.Context, now time.Time) *model.Snapshot {
	if s := p.snap.Load(); p.fresh(s, now) {
		return s
	}
	if p.store == nil {
		return nil
	}
	s, err := p.store.LoadSnapshot(ctx)
	if err != nil {
		p.log.Warn("snapshot store read failed", "error", err)
		return nil
	}
	if !p.fresh(s, now) {
		return nil
	}
	p.adopt(s)
	return s
}

// Quote returns the current price of symbol.
func (p *Provider) Quote(ctx context.Context, symbol string) (model.PriceQuote, error) {
	symbol = normalize(symbol)
	now := p.now()

	if s := p.freshSnapshot(ctx, now); s != nil {
		if d, ok := s.Stock(symbol); ok {
			p.metrics.SetSnapshotAge(s.Age(now).Seconds())
			return p.serve(model.PriceQuote{
				Symbol: symbol,
				Price:  decimal.NewFromFloat(d.Price),
				AsOf:   s.Time(),
				Source: model.SourceCached,
			}), nil
		}
	}

	liveErr := errNoLive
	if p.live != nil {
		price, at, err := p.livePrice(ctx, symbol)
		if err == nil {
			if at.IsZero() || at.After(now) {
				at = now
			}
			p.remember(symbol, func(s *seen) {
				s.price = price
				s.asOf = at
			})
			return p.serve(model.PriceQuote{
				Symbol: symbol,
				Price:  decimal.NewFromFloat(price),
				AsOf:   at,
				Source: model.SourceLive,
			}), nil
		}
		liveErr = err
		p.log.Warn("live quote failed, trying cache", "symbol", symbol, "error", err)
	}

	p.mu.RLock()
	s, ok := p.last[symbol]
	p.mu.RUnlock()
	if !ok || s.asOf.IsZero() {
		return model.PriceQuote{}, fmt.Errorf("%s: %w (live: %v)", symbol, ErrUnknownSymbol, liveErr)
	}

	q := model.PriceQuote{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(s.price),
		AsOf:   s.asOf,
		Source: model.SourceCached,
		Stale:  now.Sub(s.asOf) >= p.cfg.TTL,
	}
	if q.Stale && p.cfg.RejectStale {
		return model.PriceQuote{}, fmt.Errorf("%s as of %s: %w", symbol, s.asOf.Format(time.RFC3339), ErrStaleData)
	}
	return p.serve(q), nil
}

func (p *Provider) serve(q model.PriceQuote) model.PriceQuote {
	p.metrics.ObserveQuote(string(q.Source), q.Stale)
	return q
}

// Series returns the last lookback daily bars of symbol. lookback <= 0
// returns every available bar.
func (p *Provider) Series(ctx context.Context, symbol string, lookback int) (model.PriceSeries, error) {
	symbol = normalize(symbol)
	now := p.now()

	if s := p.freshSnapshot(ctx, now); s != nil {
		if ser, ok := s.Series[symbol]; ok && ser.Len() > 0 {
			return ser.Tail(lookback), nil
		}
	}

	liveErr := errNoLive
	if p.live != nil {
		days := p.cfg.HistoryDays
		if lookback > days {
			days = lookback
		}
		ser, err := p.liveBars(ctx, symbol, days)
		if err == nil {
			p.remember(symbol, func(s *seen) { s.series = ser })
			p.writeSeries(ctx, ser)
			return ser.Tail(lookback), nil
		}
		liveErr = err
		p.log.Warn("live series failed, trying cache", "symbol", symbol, "error", err)
	}

	p.mu.RLock()
	s := p.last[symbol]
	p.mu.RUnlock()
	if s.series.Len() > 0 {
		return s.series.Tail(lookback), nil
	}

	if p.series != nil {
		ser, err := p.series.ReadSeries(ctx, symbol, time.Time{})
		if err != nil {
			p.log.Warn("series cache read failed", "symbol", symbol, "error", err)
		} else if ser.Len() > 0 {
			p.remember(symbol, func(s *seen) { s.series = ser })
			return ser.Tail(lookback), nil
		}
	}
	return model.PriceSeries{}, fmt.Errorf("%s: %w (live: %v)", symbol, ErrUnknownSymbol, liveErr)
}

func (p *Provider) remember(symbol string, fn func(*seen)) {
	p.mu.Lock()
	s := p.last[symbol]
	fn(&s)
	p.last[symbol] = s
	p.mu.Unlock()
}

func (p *Provider) writeSeries(ctx context.Context, ser model.PriceSeries) {
	if p.series == nil {
		return
	}
	if err := p.series.WriteSeries(ctx, ser); err != nil {
		p.log.Warn("series cache write failed", "symbol", ser.Symbol, "error", err)
	}
}

var errNoLive = errors.New("no live source configured")

func (p *Provider) livePrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	var (
		price float64
		at    time.Time
	)
	err := p.callLive(ctx, func(ctx context.Context) error {
		var err error
		price, at, err = p.live.LatestPrice(ctx, symbol)
		if err == nil && price <= 0 {
			err = fmt.Errorf("%s: non-positive price %v", symbol, price)
		}
		return err
	})
	return price, at, err
}

func (p *Provider) liveBars(ctx context.Context, symbol string, days int) (model.PriceSeries, error) {
	var ser model.PriceSeries
	err := p.callLive(ctx, func(ctx context.Context) error {
		var err error
		ser, err = p.live.DailyBars(ctx, symbol, days)
		if err == nil && ser.Len() == 0 {
			err = fmt.Errorf("%s: no bars: %w", symbol, ErrUnknownSymbol)
		}
		return err
	})
	ser.Symbol = symbol
	return ser, err
}

// callLive runs fn through the breaker with the fetch timeout applied.
func (p *Provider) callLive(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	err := p.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
		return fn(ctx)
	})
	if !errors.Is(err, ErrCircuitOpen) {
		p.metrics.ObserveLiveFetch(time.Since(start).Seconds(), err)
	}
	return err
}

// Status describes where data is currently coming from.
func (p *Provider) Status() string {
	var b strings.Builder
	if p.live == nil {
		b.WriteString("offline (no live source)")
	} else {
		fmt.Fprintf(&b, "live source %s, breaker %s", p.live.Name(), p.breaker.State())
	}
	s := p.snap.Load()
	if s == nil {
		b.WriteString("; no cached snapshot")
		return b.String()
	}
	age := s.Age(p.now()).Round(time.Second)
	state := "fresh"
	if age >= p.cfg.TTL {
		state = "stale"
	}
	fmt.Fprintf(&b, "; snapshot %s (%s old, %s, %d stocks)", s.GeneratedAt, age, state, len(s.Stocks))
	return b.String()
}

// BreakerState exposes the live source breaker state.
func (p *Provider) BreakerState() BreakerState {
	return p.breaker.State()
}

// Universe returns the configured refresh universe.
func (p *Provider) Universe() []string {
	out := make([]string, len(p.cfg.Universe))
	copy(out, p.cfg.Universe)
	return out
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
