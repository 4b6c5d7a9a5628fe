package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// Business logic depends on these; JSON file, SQLite and Redis
// implementations live under internal/store.

// PortfolioStore persists the account record.
type PortfolioStore interface {
	// Load returns the stored state. found is false when nothing was saved yet.
	Load(ctx context.Context) (state PortfolioState, found bool, err error)

	// Save replaces the stored state.
	Save(ctx context.Context, state PortfolioState) error
}

// SnapshotStore shares market-data snapshots between the refresh job and
// readers.
type SnapshotStore interface {
	// SaveSnapshot replaces the stored snapshot.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// LoadSnapshot returns the stored snapshot, or nil, nil when none exists.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// SeriesCache keeps bar history for offline fallback.
type SeriesCache interface {
	// WriteSeries upserts the bars of one symbol.
	WriteSeries(ctx context.Context, series PriceSeries) error

	// ReadSeries returns bars at or after since, ascending.
	ReadSeries(ctx context.Context, symbol string, since time.Time) (PriceSeries, error)
}
