package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/model"
)

// Pricer prices holdings. *marketdata.Provider satisfies it.
type Pricer interface {
	Quote(ctx context.Context, symbol string) (model.PriceQuote, error)
}

// HoldingStatus is the valuation of one position.
type HoldingStatus struct {
	Symbol       string          `json:"symbol"`
	Shares       int64           `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	CurrentValue decimal.Decimal `json:"current_value"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPct       decimal.Decimal `json:"pnl_pct"`

	// PriceKnown is false when no quote was available; the position is
	// then valued at cost.
	PriceKnown bool `json:"price_known"`
}

// Status is the full account view.
type Status struct {
	Day             int             `json:"day"`
	StartDate       time.Time       `json:"start_date"`
	StartingCash    decimal.Decimal `json:"starting_cash"`
	Cash            decimal.Decimal `json:"cash"`
	HoldingsValue   decimal.Decimal `json:"holdings_value"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalReturnPct  decimal.Decimal `json:"total_return_pct"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	NumHoldings     int             `json:"num_holdings"`
	Holdings        []HoldingStatus `json:"holdings"`
	NumTransactions int             `json:"num_transactions"`
}

var hundred = decimal.NewFromInt(100)

// Valuate values s at prices. Holdings without a price are valued at their
// average cost. Holdings are sorted by symbol.
func Valuate(s model.PortfolioState, prices map[string]decimal.Decimal) Status {
	st := Status{
		Day:             s.Day,
		StartDate:       s.StartDate,
		StartingCash:    s.StartingCash,
		Cash:            s.Cash,
		RealizedPnL:     s.RealizedPnL,
		NumHoldings:     len(s.Holdings),
		Holdings:        make([]HoldingStatus, 0, len(s.Holdings)),
		NumTransactions: len(s.Transactions),
	}
	for sym, h := range s.Holdings {
		price, ok := prices[sym]
		if !ok {
			price = h.AvgCost
		}
		hs := HoldingStatus{
			Symbol:       sym,
			Shares:       h.Shares,
			AvgCost:      h.AvgCost,
			CurrentPrice: price,
			CostBasis:    h.CostBasis(),
			CurrentValue: h.MarketValue(price),
			PnL:          h.UnrealizedPnL(price),
			PriceKnown:   ok,
		}
		if hs.CostBasis.IsPositive() {
			hs.PnLPct = hs.PnL.Div(hs.CostBasis).Mul(hundred).Round(2)
		}
		st.HoldingsValue = st.HoldingsValue.Add(hs.CurrentValue)
		st.UnrealizedPnL = st.UnrealizedPnL.Add(hs.PnL)
		st.Holdings = append(st.Holdings, hs)
	}
	sort.Slice(st.Holdings, func(i, j int) bool { return st.Holdings[i].Symbol < st.Holdings[j].Symbol })

	st.TotalValue = st.Cash.Add(st.HoldingsValue)
	if st.StartingCash.IsPositive() {
		st.TotalReturnPct = st.TotalValue.Sub(st.StartingCash).Div(st.StartingCash).Mul(hundred).Round(2)
	}
	return st
}

// TotalValue returns cash plus holdings at prices, holdings without a
// price counted at cost.
func TotalValue(s model.PortfolioState, prices map[string]decimal.Decimal) decimal.Decimal {
	total := s.Cash
	for sym, h := range s.Holdings {
		price, ok := prices[sym]
		if !ok {
			price = h.AvgCost
		}
		total = total.Add(h.MarketValue(price))
	}
	return total
}

// Prices quotes every held symbol. Symbols that cannot be priced are left
// out; Valuate then counts them at cost.
func Prices(ctx context.Context, s model.PortfolioState, pricer Pricer) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(s.Holdings))
	if pricer == nil {
		return prices
	}
	for sym := range s.Holdings {
		q, err := pricer.Quote(ctx, sym)
		if err != nil {
			continue
		}
		prices[sym] = q.Price
	}
	return prices
}

// Status values the current state at live or cached prices.
func (p *Portfolio) Status(ctx context.Context, pricer Pricer) Status {
	s := p.View()
	st := Valuate(s, Prices(ctx, s, pricer))
	total, _ := st.TotalValue.Float64()
	cash, _ := st.Cash.Float64()
	p.metrics.SetPortfolio(total, cash)
	return st
}
