package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/model"
)

type memStore struct {
	state model.PortfolioState
	found bool
	saves int
	fail  error
}

func (m *memStore) Load(context.Context) (model.PortfolioState, bool, error) {
	return m.state.Clone(), m.found, nil
}

func (m *memStore) Save(_ context.Context, s model.PortfolioState) error {
	if m.fail != nil {
		return m.fail
	}
	m.state, m.found = s.Clone(), true
	m.saves++
	return nil
}

var t0 = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOpen_CreatesAndSaves(t *testing.T) {
	store := &memStore{}
	p, err := Open(context.Background(), store, d("1000"), WithClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatal(err)
	}
	if store.saves != 1 || !store.state.Cash.Equal(d("1000")) {
		t.Errorf("store = %+v", store)
	}
	s := p.View()
	if s.Day != 1 || !s.StartDate.Equal(t0) || len(s.Holdings) != 0 {
		t.Errorf("state = %+v", s)
	}
}

func TestOpen_LoadsExisting(t *testing.T) {
	existing := model.NewPortfolioState(d("500"), t0)
	existing.Holdings["KO"] = model.Holding{Shares: 2, AvgCost: d("60")}
	store := &memStore{state: existing, found: true}

	p, err := Open(context.Background(), store, d("1000"))
	if err != nil {
		t.Fatal(err)
	}
	if store.saves != 0 {
		t.Error("loading must not rewrite the store")
	}
	if !p.View().Cash.Equal(d("500")) {
		t.Error("expected stored cash")
	}
}

func TestOpen_RejectsCorruptState(t *testing.T) {
	bad := model.NewPortfolioState(d("-1"), t0)
	if _, err := Open(context.Background(), &memStore{state: bad, found: true}, d("1000")); err == nil {
		t.Fatal("expected invariant error")
	}
}

func TestUpdate_RollsBack(t *testing.T) {
	store := &memStore{}
	p := New(model.NewPortfolioState(d("100"), t0), store)
	ctx := context.Background()

	errFn := errors.New("fn")
	err := p.Update(ctx, func(s *model.PortfolioState) error {
		s.Cash = d("1")
		return errFn
	})
	if !errors.Is(err, errFn) || !p.View().Cash.Equal(d("100")) {
		t.Fatalf("fn error: %v, cash %s", err, p.View().Cash)
	}

	if err := p.Update(ctx, func(s *model.PortfolioState) error {
		s.Cash = d("-5")
		return nil
	}); err == nil {
		t.Fatal("negative cash must be rejected")
	}

	store.fail = errors.New("disk")
	if err := p.Update(ctx, func(s *model.PortfolioState) error {
		s.Holdings["X"] = model.Holding{Shares: 1, AvgCost: d("1")}
		return nil
	}); err == nil {
		t.Fatal("expected save error")
	}
	if len(p.View().Holdings) != 0 || !p.View().Cash.Equal(d("100")) {
		t.Error("state changed after failed save")
	}
}

func TestView_IsACopy(t *testing.T) {
	p := New(model.NewPortfolioState(d("100"), t0), nil)
	v := p.View()
	v.Holdings["X"] = model.Holding{Shares: 1, AvgCost: d("1")}
	v.Transactions = append(v.Transactions, model.Trade{Symbol: "X"})
	if len(p.View().Holdings) != 0 || len(p.View().Transactions) != 0 {
		t.Error("mutating a view leaked into the portfolio")
	}
}

func TestHistory(t *testing.T) {
	s := model.NewPortfolioState(d("100"), t0)
	for _, sym := range []string{"A", "B", "C"} {
		s.Transactions = append(s.Transactions, model.Trade{Symbol: sym})
	}
	p := New(s, nil)
	if h := p.History(2); len(h) != 2 || h[0].Symbol != "B" || h[1].Symbol != "C" {
		t.Errorf("History(2) = %v", h)
	}
	if h := p.History(0); len(h) != 3 {
		t.Errorf("History(0) len = %d", len(h))
	}
}

func TestValuate(t *testing.T) {
	s := model.NewPortfolioState(d("1000"), t0)
	s.Cash = d("400")
	s.Holdings["NVDA"] = model.Holding{Shares: 4, AvgCost: d("100")}
	s.Holdings["KO"] = model.Holding{Shares: 2, AvgCost: d("50")}
	s.RealizedPnL = d("12.5")

	st := Valuate(s, map[string]decimal.Decimal{"NVDA": d("120")})

	// NVDA 4*120 = 480; KO unpriced at cost 100.
	if !st.HoldingsValue.Equal(d("580")) || !st.TotalValue.Equal(d("980")) {
		t.Errorf("holdings=%s total=%s", st.HoldingsValue, st.TotalValue)
	}
	if !st.TotalReturnPct.Equal(d("-2")) {
		t.Errorf("return = %s, want -2", st.TotalReturnPct)
	}
	if !st.UnrealizedPnL.Equal(d("80")) || !st.RealizedPnL.Equal(d("12.5")) {
		t.Errorf("unrealized=%s realized=%s", st.UnrealizedPnL, st.RealizedPnL)
	}
	if len(st.Holdings) != 2 || st.Holdings[0].Symbol != "KO" {
		t.Fatalf("holdings not sorted: %+v", st.Holdings)
	}
	ko, nvda := st.Holdings[0], st.Holdings[1]
	if ko.PriceKnown || !nvda.PriceKnown {
		t.Error("PriceKnown flags wrong")
	}
	if !nvda.PnLPct.Equal(d("20")) || !nvda.PnL.Equal(d("80")) {
		t.Errorf("nvda pnl=%s pct=%s", nvda.PnL, nvda.PnLPct)
	}
	if !TotalValue(s, map[string]decimal.Decimal{"NVDA": d("120")}).Equal(st.TotalValue) {
		t.Error("TotalValue disagrees with Valuate")
	}
}

type pricer map[string]string

func (p pricer) Quote(_ context.Context, sym string) (model.PriceQuote, error) {
	v, ok := p[sym]
	if !ok {
		return model.PriceQuote{}, errors.New("no price")
	}
	return model.PriceQuote{Symbol: sym, Price: d(v)}, nil
}

func TestStatus_PricesHoldings(t *testing.T) {
	s := model.NewPortfolioState(d("0"), t0)
	s.Holdings["A"] = model.Holding{Shares: 1, AvgCost: d("10")}
	s.Holdings["B"] = model.Holding{Shares: 1, AvgCost: d("10")}
	st := New(s, nil).Status(context.Background(), pricer{"A": "15"})
	if !st.TotalValue.Equal(d("25")) {
		t.Errorf("total = %s, want 25", st.TotalValue)
	}
}
