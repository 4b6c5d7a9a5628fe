package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q (use BUY or SELL)", s)
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Trade is an executed order. It is never mutated after creation and is
// appended to the portfolio transaction history in execution order.
type Trade struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Shares      int64           `json:"shares"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	CashAfter   decimal.Decimal `json:"cash_after"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"` // zero for buys
	PriceSource Source          `json:"price_source,omitempty"`
}

// String renders a one-line summary, e.g. "BUY 5 NVDA @ 100.00".
func (t Trade) String() string {
	return fmt.Sprintf("%s %d %s @ %s", t.Side, t.Shares, t.Symbol, t.Price.StringFixed(2))
}
