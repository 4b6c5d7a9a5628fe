package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tradersim/internal/model"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type fakeLive struct {
	mu      sync.Mutex
	prices  map[string]float64
	bars    map[string]model.PriceSeries
	fail    error // returned by every call when set
	block   bool  // wait for ctx instead of answering
	calls   int
	priceAt time.Time
}

func (f *fakeLive) Name() string { return "fake" }

func (f *fakeLive) LatestPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	f.mu.Lock()
	f.calls++
	fail, block := f.fail, f.block
	price, ok := f.prices[symbol]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, time.Time{}, ctx.Err()
	}
	if fail != nil {
		return 0, time.Time{}, fail
	}
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}
	return price, f.priceAt, nil
}

func (f *fakeLive) DailyBars(ctx context.Context, symbol string, days int) (model.PriceSeries, error) {
	f.mu.Lock()
	f.calls++
	fail, block := f.fail, f.block
	ser, ok := f.bars[symbol]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return model.PriceSeries{}, ctx.Err()
	}
	if fail != nil {
		return model.PriceSeries{}, fail
	}
	if !ok {
		return model.PriceSeries{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}
	return ser.Tail(days), nil
}

func (f *fakeLive) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeLive) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memSnapshotStore struct {
	mu   sync.Mutex
	snap *model.Snapshot
	err  error
}

func (m *memSnapshotStore) SaveSnapshot(_ context.Context, s *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snap = s
	return nil
}

func (m *memSnapshotStore) LoadSnapshot(context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.err
}

type memSeriesCache struct {
	mu     sync.Mutex
	series map[string]model.PriceSeries
}

func (m *memSeriesCache) WriteSeries(_ context.Context, s model.PriceSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.series == nil {
		m.series = make(map[string]model.PriceSeries)
	}
	m.series[s.Symbol] = s
	return nil
}

func (m *memSeriesCache) ReadSeries(_ context.Context, symbol string, _ time.Time) (model.PriceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.series[symbol], nil
}

var t0 = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func bars(symbol string, n int, start float64) model.PriceSeries {
	s := model.PriceSeries{Symbol: symbol}
	for i := 0; i < n; i++ {
		c := start + float64(i)
		s.Bars = append(s.Bars, model.Bar{
			TS: t0.AddDate(0, 0, i-n), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1_000_000,
		})
	}
	return s
}

func snapshotAt(at time.Time, stocks map[string]float64) *model.Snapshot {
	s := &model.Snapshot{
		Timestamp:   at.Unix(),
		GeneratedAt: at.Format(time.RFC3339),
		Stocks:      make(map[string]model.StockData),
	}
	for sym, p := range stocks {
		s.Stocks[sym] = model.StockData{Price: p}
	}
	s.StocksFetched = len(s.Stocks)
	return s
}

func newTestProvider(cfg Config, deps Deps) (*Provider, *fakeClock) {
	clk := &fakeClock{t: t0}
	p := New(cfg, deps)
	p.now = clk.Now
	p.breaker.now = clk.Now
	return p, clk
}

// ────────────────────────────────────────────────────────────
// Quote
// ────────────────────────────────────────────────────────────

func TestQuote_FreshCacheServedWithoutLive(t *testing.T) {
	live := &fakeLive{prices: map[string]float64{"NVDA": 999}}
	p, clk := newTestProvider(Config{}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140.12}))
	clk.Advance(5 * time.Minute)

	q, err := p.Quote(context.Background(), "nvda")
	if err != nil {
		t.Fatal(err)
	}
	if q.Source != model.SourceCached || q.Stale {
		t.Errorf("source = %s stale = %v, want fresh CACHED", q.Source, q.Stale)
	}
	if !q.Price.Equal(mustDec("140.12")) {
		t.Errorf("price = %s, want 140.12", q.Price)
	}
	if live.callCount() != 0 {
		t.Errorf("live called %d times for a fresh cache", live.callCount())
	}
}

func TestQuote_ExpiredCacheFetchesLive(t *testing.T) {
	live := &fakeLive{prices: map[string]float64{"NVDA": 142.5}}
	p, clk := newTestProvider(Config{}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140.12}))
	clk.Advance(601 * time.Second)

	q, err := p.Quote(context.Background(), "NVDA")
	if err != nil {
		t.Fatal(err)
	}
	if q.Source != model.SourceLive {
		t.Errorf("source = %s, want LIVE", q.Source)
	}
	if !q.AsOf.Equal(clk.Now()) {
		t.Errorf("as_of = %v, want fetch time %v", q.AsOf, clk.Now())
	}
	if !q.Price.Equal(mustDec("142.5")) {
		t.Errorf("price = %s", q.Price)
	}
}

func TestQuote_StaleCacheWhenLiveFails(t *testing.T) {
	// Cache 700s old, TTL 600s, live source down.
	live := &fakeLive{fail: errors.New("connection refused")}
	p, clk := newTestProvider(Config{TTL: 600 * time.Second}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140.12}))
	clk.Advance(700 * time.Second)

	q, err := p.Quote(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if q.Source != model.SourceCached {
		t.Errorf("source = %s, want CACHED", q.Source)
	}
	if !q.AsOf.Equal(t0) {
		t.Errorf("as_of = %v, want original timestamp %v", q.AsOf, t0)
	}
	if !q.Stale {
		t.Error("quote past TTL must be flagged stale")
	}
	if got := q.Age(clk.Now()); got != 700*time.Second {
		t.Errorf("age = %v, want 700s", got)
	}
}

func TestQuote_RejectStale(t *testing.T) {
	live := &fakeLive{fail: errors.New("timeout")}
	p, clk := newTestProvider(Config{RejectStale: true}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140.12}))
	clk.Advance(700 * time.Second)

	_, err := p.Quote(context.Background(), "NVDA")
	if !errors.Is(err, ErrStaleData) {
		t.Fatalf("expected ErrStaleData, got %v", err)
	}
}

func TestQuote_UnknownSymbol(t *testing.T) {
	live := &fakeLive{prices: map[string]float64{}}
	p, _ := newTestProvider(Config{}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140.12}))

	_, err := p.Quote(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestQuote_OfflineWithoutDataIsUnknown(t *testing.T) {
	p, _ := newTestProvider(Config{}, Deps{})
	_, err := p.Quote(context.Background(), "AAPL")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestQuote_LiveTimeoutFallsBack(t *testing.T) {
	live := &fakeLive{block: true}
	p, clk := newTestProvider(Config{FetchTimeout: 20 * time.Millisecond}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140.12}))
	clk.Advance(time.Hour)

	start := time.Now()
	q, err := p.Quote(context.Background(), "NVDA")
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("fetch timeout not applied")
	}
	if q.Source != model.SourceCached || !q.Stale {
		t.Errorf("got %s stale=%v, want stale CACHED", q.Source, q.Stale)
	}
}

func TestQuote_FallbackKeepsSymbolFromOlderSnapshot(t *testing.T) {
	live := &fakeLive{fail: errors.New("down")}
	p, clk := newTestProvider(Config{}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140, "PLTR": 22}))
	clk.Advance(time.Minute)
	p.Install(snapshotAt(clk.Now(), map[string]float64{"NVDA": 141}))
	clk.Advance(time.Minute)

	q, err := p.Quote(context.Background(), "PLTR")
	if err != nil {
		t.Fatal(err)
	}
	if !q.AsOf.Equal(t0) || !q.Price.Equal(mustDec("22")) {
		t.Errorf("got %s @ %v, want 22 @ %v", q.Price, q.AsOf, t0)
	}
}

func TestQuote_AdoptsFreshStoredSnapshot(t *testing.T) {
	store := &memSnapshotStore{}
	live := &fakeLive{fail: errors.New("down")}
	p, clk := newTestProvider(Config{}, Deps{Live: live, Store: store})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140}))
	clk.Advance(20 * time.Minute)

	// Another process refreshed two minutes ago.
	store.snap = snapshotAt(clk.Now().Add(-2*time.Minute), map[string]float64{"NVDA": 150})

	q, err := p.Quote(context.Background(), "NVDA")
	if err != nil {
		t.Fatal(err)
	}
	if q.Stale || !q.Price.Equal(mustDec("150")) {
		t.Errorf("got %s stale=%v, want fresh 150 from store", q.Price, q.Stale)
	}
	if live.callCount() != 0 {
		t.Error("live source should not be called when the store is fresh")
	}
	if p.Snapshot().Stocks["NVDA"].Price != 150 {
		t.Error("stored snapshot should replace the in-memory one")
	}
}

func TestQuote_BreakerStopsCallingLive(t *testing.T) {
	live := &fakeLive{fail: errors.New("429")}
	p, clk := newTestProvider(Config{BreakerFailures: 2}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"NVDA": 140}))
	clk.Advance(time.Hour)

	for i := 0; i < 5; i++ {
		if _, err := p.Quote(context.Background(), "NVDA"); err != nil {
			t.Fatal(err)
		}
	}
	if live.callCount() != 2 {
		t.Errorf("live calls = %d, want 2 before the breaker opened", live.callCount())
	}
	if p.BreakerState() != BreakerOpen {
		t.Errorf("breaker = %v, want open", p.BreakerState())
	}
}

// ────────────────────────────────────────────────────────────
// Series
// ────────────────────────────────────────────────────────────

func TestSeries_LiveWritesCacheThenFallsBack(t *testing.T) {
	cache := &memSeriesCache{}
	live := &fakeLive{bars: map[string]model.PriceSeries{"AAPL": bars("AAPL", 60, 200)}}
	p, _ := newTestProvider(Config{}, Deps{Live: live, Series: cache})

	ser, err := p.Series(context.Background(), "AAPL", 30)
	if err != nil {
		t.Fatal(err)
	}
	if ser.Len() != 30 || ser.Bars[29].Close != 259 {
		t.Errorf("got %d bars, last close %v", ser.Len(), ser.Bars[len(ser.Bars)-1].Close)
	}
	if cache.series["AAPL"].Len() != 60 {
		t.Errorf("series cache holds %d bars, want 60", cache.series["AAPL"].Len())
	}

	// A fresh provider sharing only the cache still answers offline.
	off, _ := newTestProvider(Config{}, Deps{Series: cache})
	ser, err = off.Series(context.Background(), "AAPL", 0)
	if err != nil {
		t.Fatal(err)
	}
	if ser.Len() != 60 {
		t.Errorf("offline series = %d bars, want 60", ser.Len())
	}
}

func TestSeries_Unknown(t *testing.T) {
	p, _ := newTestProvider(Config{}, Deps{Live: &fakeLive{}})
	if _, err := p.Series(context.Background(), "NOPE", 10); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Refresh
// ────────────────────────────────────────────────────────────

type alwaysOpen struct{}

func (alwaysOpen) IsOpen(time.Time) bool { return true }

func TestRefresh_BuildsAndSwapsSnapshot(t *testing.T) {
	store := &memSnapshotStore{}
	live := &fakeLive{
		prices: map[string]float64{"NVDA": 160, "AMD": 120},
		bars: map[string]model.PriceSeries{
			"NVDA": bars("NVDA", 60, 100),
			"AMD":  bars("AMD", 60, 60),
		},
	}
	cfg := Config{Universe: []string{"NVDA", "AMD", "GONE"}}
	p, clk := newTestProvider(cfg, Deps{Live: live, Store: store, Session: alwaysOpen{}})

	snap, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.StocksFetched != 2 || len(snap.StocksFailed) != 1 || snap.StocksFailed[0] != "GONE" {
		t.Errorf("fetched=%d failed=%v", snap.StocksFetched, snap.StocksFailed)
	}
	if !snap.MarketOpen {
		t.Error("market_open should come from the session clock")
	}
	if snap.Timestamp != clk.Now().Unix() {
		t.Errorf("timestamp = %d, want %d", snap.Timestamp, clk.Now().Unix())
	}
	nv := snap.Stocks["NVDA"]
	if nv.Price != 160 || nv.SMA10 != 154.5 || nv.RSI != 100 {
		t.Errorf("NVDA profile = %+v", nv)
	}
	if p.Snapshot() != snap {
		t.Error("snapshot not installed")
	}
	if store.snap != snap {
		t.Error("snapshot not saved to store")
	}
}

func TestRefresh_TotalFailureKeepsPrevious(t *testing.T) {
	live := &fakeLive{fail: errors.New("down")}
	p, _ := newTestProvider(Config{Universe: []string{"NVDA"}, BreakerFailures: -1}, Deps{Live: live})
	prev := snapshotAt(t0, map[string]float64{"NVDA": 140})
	p.Install(prev)

	_, err := p.Refresh(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if p.Snapshot() != prev {
		t.Error("previous snapshot must survive a failed refresh")
	}
}

func TestRefresh_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	live := &fakeLive{
		prices: map[string]float64{"A": 10, "B": 20},
		bars:   map[string]model.PriceSeries{"A": bars("A", 30, 10), "B": bars("B", 30, 20)},
	}
	p, _ := newTestProvider(Config{Universe: []string{"A", "B"}}, Deps{Live: live})
	p.Install(snapshotAt(t0, map[string]float64{"A": 1, "B": 2}))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := p.Snapshot()
				a, b := s.Stocks["A"].Price, s.Stocks["B"].Price
				if !(a == 1 && b == 2) && !(a == 10 && b == 20) {
					t.Errorf("mixed snapshot: A=%v B=%v", a, b)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		if _, err := p.Refresh(context.Background()); err != nil {
			t.Error(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStatus(t *testing.T) {
	p, clk := newTestProvider(Config{}, Deps{Live: &fakeLive{}})
	if !strings.Contains(p.Status(), "no cached snapshot") {
		t.Errorf("status = %q", p.Status())
	}
	p.Install(snapshotAt(t0, map[string]float64{"X": 1}))
	clk.Advance(11 * time.Minute)
	st := p.Status()
	if !strings.Contains(st, "fake") || !strings.Contains(st, "stale") {
		t.Errorf("status = %q", st)
	}
}

func TestWarm_LoadsStoredSnapshotRegardlessOfAge(t *testing.T) {
	store := &memSnapshotStore{snap: snapshotAt(t0.Add(-48*time.Hour), map[string]float64{"KO": 63})}
	p, _ := newTestProvider(Config{}, Deps{Store: store})
	if err := p.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	q, err := p.Quote(context.Background(), "KO")
	if err != nil {
		t.Fatal(err)
	}
	if !q.Stale || q.Source != model.SourceCached {
		t.Errorf("got %+v, want stale CACHED", q)
	}
}

type alwaysClosed struct{}

func (alwaysClosed) IsOpen(time.Time) bool { return false }

func TestRun_RefreshesUntilCancelled(t *testing.T) {
	live := &fakeLive{prices: map[string]float64{"NVDA": 160}, bars: map[string]model.PriceSeries{"NVDA": bars("NVDA", 30, 100)}}
	p, _ := newTestProvider(Config{Universe: []string{"NVDA"}}, Deps{Live: live})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *model.Snapshot, 8)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, time.Millisecond, func(s *model.Snapshot, err error) {
			if err == nil {
				select {
				case got <- s:
				default:
				}
			}
		})
		close(done)
	}()

	select {
	case s := <-got:
		if s.StocksFetched != 1 {
			t.Errorf("fetched = %d", s.StocksFetched)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh observed")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRun_MarketHoursOnlySkipsClosedSession(t *testing.T) {
	live := &fakeLive{prices: map[string]float64{"NVDA": 160}, bars: map[string]model.PriceSeries{"NVDA": bars("NVDA", 30, 100)}}
	p, _ := newTestProvider(Config{Universe: []string{"NVDA"}, MarketHoursOnly: true}, Deps{Live: live, Session: alwaysClosed{}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var reported int
	p.Run(ctx, time.Millisecond, func(*model.Snapshot, error) { reported++ })

	if n := live.callCount(); n != 0 || reported != 0 {
		t.Errorf("live calls = %d, reported = %d; want none while closed", n, reported)
	}
}
