package advisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradersim/internal/model"
	"tradersim/internal/store/jsonfile"
)

// DefaultMaxSessions caps the session log.
const DefaultMaxSessions = 1000

// Session is the record of one decision cycle.
type Session struct {
	Timestamp      time.Time       `json:"timestamp"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Cash           decimal.Decimal `json:"cash"`
	Positions      int             `json:"positions"`
	Analysis       string          `json:"analysis,omitempty"`
	ExecutedTrades []model.Trade   `json:"executed_trades"`
	SkippedTrades  []Skipped       `json:"skipped_trades"`
	HoldReasoning  string          `json:"hold_reasoning,omitempty"`
}

type sessionFile struct {
	Sessions []Session `json:"sessions"`
}

// SessionLog appends sessions to a JSON file, keeping only the newest.
type SessionLog struct {
	mu   sync.Mutex
	path string
	max  int
}

// NewSessionLog returns a log at path. limit <= 0 uses DefaultMaxSessions.
func NewSessionLog(path string, limit int) *SessionLog {
	if limit <= 0 {
		limit = DefaultMaxSessions
	}
	return &SessionLog{path: path, max: limit}
}

// Append adds s and drops the oldest sessions beyond the cap. An
// unreadable log is started over.
func (l *SessionLog) Append(s Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		f = sessionFile{}
	}
	f.Sessions = append(f.Sessions, s)
	if len(f.Sessions) > l.max {
		f.Sessions = f.Sessions[len(f.Sessions)-l.max:]
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("session log encode: %w", err)
	}
	return jsonfile.WriteAtomic(l.path, data)
}

// Recent returns the last n sessions, oldest first. n <= 0 returns all.
func (l *SessionLog) Recent(n int) ([]Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if n > 0 && len(f.Sessions) > n {
		f.Sessions = f.Sessions[len(f.Sessions)-n:]
	}
	return f.Sessions, nil
}

func (l *SessionLog) read() (sessionFile, error) {
	var f sessionFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return sessionFile{}, fmt.Errorf("session log decode: %w", err)
	}
	return f, nil
}
