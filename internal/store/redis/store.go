// Package redis shares market-data snapshots between the refresh job and
// readers through a single Redis key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradersim/internal/model"
)

const (
	// DefaultKey holds the JSON snapshot.
	DefaultKey = "tradersim:snapshot"

	// UpdatesChannel receives the snapshot timestamp after every save.
	UpdatesChannel = "tradersim:snapshot:updated"

	// Readers judge freshness from the embedded timestamp; the key TTL
	// only bounds how long an abandoned snapshot lingers.
	defaultSnapshotTTL = 24 * time.Hour
)

// Config configures the Redis snapshot store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Key      string // defaults to DefaultKey
}

// Store is a model.SnapshotStore.
type Store struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Debug("redis connected", "component", "redis", "addr", cfg.Addr)
	return NewFromClient(client, cfg.Key), nil
}

// NewFromClient wraps an existing client. An empty key uses DefaultKey.
func NewFromClient(client *goredis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key, ttl: defaultSnapshotTTL}
}

// SaveSnapshot replaces the stored snapshot and announces its timestamp.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("redis save snapshot: nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	if err := s.client.Publish(ctx, UpdatesChannel, strconv.FormatInt(snap.Timestamp, 10)).Err(); err != nil {
		slog.Warn("snapshot publish failed", "component", "redis", "error", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot, or nil, nil when none exists.
func (s *Store) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", s.key, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Updates subscribes to snapshot announcements. The channel yields
// snapshot timestamps and closes when ctx is done.
func (s *Store) Updates(ctx context.Context) (<-chan int64, error) {
	sub := s.client.Subscribe(ctx, UpdatesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", UpdatesChannel, err)
	}
	out := make(chan int64, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				ts, err := strconv.ParseInt(m.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- ts:
				default: // a newer announcement will follow
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
