package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/model"
)

// Load reads the account, its holdings and transactions.
func (s *Store) Load(ctx context.Context) (model.PortfolioState, bool, error) {
	var st model.PortfolioState
	var startCash, cash, realized string
	var startDate int64
	err := s.db.QueryRowContext(ctx,
		`SELECT starting_cash, cash, realized_pnl, start_date, day FROM account WHERE id = 1`,
	).Scan(&startCash, &cash, &realized, &startDate, &st.Day)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PortfolioState{}, false, nil
	}
	if err != nil {
		return model.PortfolioState{}, false, fmt.Errorf("sqlite load account: %w", err)
	}
	if st.StartingCash, err = decimal.NewFromString(startCash); err != nil {
		return st, false, fmt.Errorf("sqlite starting_cash: %w", err)
	}
	if st.Cash, err = decimal.NewFromString(cash); err != nil {
		return st, false, fmt.Errorf("sqlite cash: %w", err)
	}
	if st.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
		return st, false, fmt.Errorf("sqlite realized_pnl: %w", err)
	}
	st.StartDate = time.Unix(0, startDate).UTC()

	if st.Holdings, err = s.loadHoldings(ctx); err != nil {
		return st, false, err
	}
	if st.Transactions, err = s.loadTransactions(ctx); err != nil {
		return st, false, err
	}
	return st, true, nil
}

func (s *Store) loadHoldings(ctx context.Context) (map[string]model.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, shares, avg_cost FROM holdings`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query holdings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Holding)
	for rows.Next() {
		var (
			sym  string
			h    model.Holding
			cost string
		)
		if err := rows.Scan(&sym, &h.Shares, &cost); err != nil {
			return nil, fmt.Errorf("sqlite scan holdings: %w", err)
		}
		if h.AvgCost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("sqlite %s avg_cost: %w", sym, err)
		}
		out[sym] = h
	}
	return out, rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, symbol, side, shares, price, total, cash_after, realized_pnl, price_source
		FROM transactions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query transactions: %w", err)
	}
	defer rows.Close()

	out := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var ts int64
		var side, source string
		var price, total, cashAfter, realized string
		if err := rows.Scan(&t.ID, &ts, &t.Symbol, &side, &t.Shares, &price, &total, &cashAfter, &realized, &source); err != nil {
			return nil, fmt.Errorf("sqlite scan transactions: %w", err)
		}
		t.Timestamp = time.Unix(0, ts).UTC()
		t.Side = model.Side(side)
		t.PriceSource = model.Source(source)
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&t.Price, price}, {&t.Total, total}, {&t.CashAfter, cashAfter}, {&t.RealizedPnL, realized}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("sqlite transaction %s: %w", t.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Save replaces the account in one transaction. Transactions are
// append-only, so only rows past the stored count are inserted; a shorter
// history (after a reset) rewrites the table.
func (s *Store) Save(ctx context.Context, st model.PortfolioState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO account (id, starting_cash, cash, realized_pnl, start_date, day)
		VALUES (1, ?, ?, ?, ?, ?)
	`, st.StartingCash.String(), st.Cash.String(), st.RealizedPnL.String(), st.StartDate.UnixNano(), st.Day); err != nil {
		return fmt.Errorf("sqlite save account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings`); err != nil {
		return fmt.Errorf("sqlite clear holdings: %w", err)
	}
	for sym, h := range st.Holdings {
		if _, err := tx.ExecContext(ctx, `INSERT INTO holdings (symbol, shares, avg_cost) VALUES (?, ?, ?)`,
			sym, h.Shares, h.AvgCost.String()); err != nil {
			return fmt.Errorf("sqlite save holding %s: %w", sym, err)
		}
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&stored); err != nil {
		return fmt.Errorf("sqlite count transactions: %w", err)
	}
	if len(st.Transactions) < stored {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
			return fmt.Errorf("sqlite clear transactions: %w", err)
		}
		stored = 0
	}
	if stored < len(st.Transactions) {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO transactions
				(seq, id, ts, symbol, side, shares, price, total, cash_after, realized_pnl, price_source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("sqlite prepare transactions: %w", err)
		}
		defer stmt.Close()
		for i := stored; i < len(st.Transactions); i++ {
			t := st.Transactions[i]
			if _, err := stmt.ExecContext(ctx, i, t.ID, t.Timestamp.UnixNano(), t.Symbol, string(t.Side), t.Shares,
				t.Price.String(), t.Total.String(), t.CashAfter.String(), t.RealizedPnL.String(), string(t.PriceSource)); err != nil {
				return fmt.Errorf("sqlite insert transaction %s: %w", t.ID, err)
			}
		}
	}
	return tx.Commit()
}
