package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"tradersim/internal/model"
)

// SnapshotStore is a model.SnapshotStore backed by a single file. It lets
// separate CLI runs share one market-data cache when Redis is not
// configured. Bar series are not written.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore returns a snapshot store for path.
func NewSnapshotStore(path string) *SnapshotStore { return &SnapshotStore{path: path} }

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("jsonfile save snapshot: nil snapshot")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteAtomic(s.path, data)
}

// LoadSnapshot returns the stored snapshot, or nil, nil when the file does
// not exist.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonfile read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("jsonfile decode snapshot %s: %w", s.path, err)
	}
	if snap.Stocks == nil {
		snap.Stocks = make(map[string]model.StockData)
	}
	return &snap, nil
}
