package sqlite

import (
	"context"
	"fmt"
	"time"

	"tradersim/internal/model"
)

// WriteSeries upserts the bars of one symbol in a single transaction.
func (s *Store) WriteSeries(ctx context.Context, series model.PriceSeries) error {
	if len(series.Bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range series.Bars {
		if _, err := stmt.ExecContext(ctx, series.Symbol, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("sqlite insert bar %s: %w", series.Symbol, err)
		}
	}
	return tx.Commit()
}

// ReadSeries returns the bars of symbol at or after since, ascending.
func (s *Store) ReadSeries(ctx context.Context, symbol string, since time.Time) (model.PriceSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, since.Unix())
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	out := model.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var b model.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return model.PriceSeries{}, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(ts, 0).UTC()
		out.Bars = append(out.Bars, b)
	}
	return out, rows.Err()
}
