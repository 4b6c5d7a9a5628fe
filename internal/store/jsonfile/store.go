// Package jsonfile keeps the portfolio and the market-data snapshot as JSON
// documents on disk.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"tradersim/internal/model"
)

// Store is a model.PortfolioStore backed by a single file. Saves write a
// temporary file in the same directory and rename it over the target, so
// a crash leaves either the old or the new document.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store for path. The parent directory is created on first
// save.
func New(path string) *Store { return &Store{path: path} }

// Path returns the file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) (model.PortfolioState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.PortfolioState{}, false, nil
	}
	if err != nil {
		return model.PortfolioState{}, false, fmt.Errorf("jsonfile read: %w", err)
	}
	var state model.PortfolioState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.PortfolioState{}, false, fmt.Errorf("jsonfile decode %s: %w", s.path, err)
	}
	if state.Holdings == nil {
		state.Holdings = make(map[string]model.Holding)
	}
	if state.Transactions == nil {
		state.Transactions = []model.Trade{}
	}
	return state, true, nil
}

func (s *Store) Save(ctx context.Context, state model.PortfolioState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile encode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteAtomic(s.path, data)
}

// WriteAtomic replaces path with data via a temporary file and rename.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile temp: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile close: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("jsonfile rename: %w", err)
	}
	return nil
}
