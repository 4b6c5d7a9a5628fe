package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is an open long position. AvgCost is the weighted average cost
// of the buy lots still held; sells never change it.
type Holding struct {
	Shares  int64           `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"`
}

// CostBasis returns shares * avg_cost.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgCost.Mul(decimal.NewFromInt(h.Shares))
}

// MarketValue returns shares * price.
func (h Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(h.Shares))
}

// UnrealizedPnL returns (price - avg_cost) * shares.
func (h Holding) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(h.AvgCost).Mul(decimal.NewFromInt(h.Shares))
}

// PortfolioState is the persisted record of an account. It is plain data;
// concurrency control lives in the portfolio package.
type PortfolioState struct {
	StartingCash decimal.Decimal    `json:"starting_cash"`
	Cash         decimal.Decimal    `json:"cash"`
	Holdings     map[string]Holding `json:"holdings"`
	Transactions []Trade            `json:"transactions"`
	RealizedPnL  decimal.Decimal    `json:"realized_pnl"`
	StartDate    time.Time          `json:"start_date"`
	Day          int                `json:"day"`
}

// NewPortfolioState returns a fresh account funded with cash.
func NewPortfolioState(cash decimal.Decimal, now time.Time) PortfolioState {
	return PortfolioState{
		StartingCash: cash,
		Cash:         cash,
		Holdings:     make(map[string]Holding),
		Transactions: []Trade{},
		StartDate:    now.UTC(),
		Day:          1,
	}
}

// Clone returns a deep copy. The transactions slice is capped so an append
// on the clone never writes into the original's backing array.
func (s PortfolioState) Clone() PortfolioState {
	c := s
	c.Holdings = make(map[string]Holding, len(s.Holdings))
	for k, v := range s.Holdings {
		c.Holdings[k] = v
	}
	c.Transactions = s.Transactions[:len(s.Transactions):len(s.Transactions)]
	return c
}
