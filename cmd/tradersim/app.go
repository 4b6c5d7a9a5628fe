package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"tradersim/config"
	"tradersim/internal/advisor"
	"tradersim/internal/analyzer"
	"tradersim/internal/execution"
	"tradersim/internal/guardrail"
	"tradersim/internal/marketdata"
	"tradersim/internal/marketdata/alpaca"
	"tradersim/internal/marketdata/sample"
	"tradersim/internal/markethours"
	"tradersim/internal/metrics"
	"tradersim/internal/model"
	"tradersim/internal/notification"
	"tradersim/internal/portfolio"
	"tradersim/internal/store/jsonfile"
	redisstore "tradersim/internal/store/redis"
	sqlitestore "tradersim/internal/store/sqlite"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg      *config.Config
	strategy config.Strategy
	session  *markethours.Session
	log      *slog.Logger
	metrics  *metrics.Metrics

	provider  *marketdata.Provider
	portfolio *portfolio.Portfolio
	engine    *execution.Engine
	guard     *guardrail.Validator
	analyzer  *analyzer.Analyzer
	sessions  *advisor.SessionLog

	sqlite *sqlitestore.Store
	redis  *redisstore.Store
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		return nil, err
	}
	session, err := strat.Session()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	a := &app{
		cfg:      cfg,
		strategy: strat,
		session:  session,
		log:      log,
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		sessions: advisor.NewSessionLog(cfg.SessionLogPath(), advisor.DefaultMaxSessions),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// ---- Storage ----
	a.sqlite, err = sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath()})
	if err != nil {
		if cfg.Store == config.StoreSQLite {
			return nil, err
		}
		log.Warn("sqlite unavailable, running without bar cache", "error", err)
		a.sqlite = nil
	}

	var pstore model.PortfolioStore = jsonfile.New(cfg.PortfolioPath())
	if cfg.Store == config.StoreSQLite {
		pstore = a.sqlite
	}

	var series model.SeriesCache
	if a.sqlite != nil {
		series = a.sqlite
	}

	var snapshots model.SnapshotStore = jsonfile.NewSnapshotStore(cfg.SnapshotPath())
	if cfg.RedisAddr != "" {
		a.redis, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Warn("redis unavailable, using the snapshot file", "error", err)
			a.redis = nil
		} else {
			snapshots = a.redis
		}
	}

	// ---- Market data ----
	var live marketdata.LiveSource
	if cfg.UseLive() {
		live = alpaca.New(alpaca.Config{
			APIKey:    cfg.AlpacaKey,
			APISecret: cfg.AlpacaSecret,
			BaseURL:   cfg.AlpacaBaseURL,
			Feed:      cfg.AlpacaFeed,
		})
	} else {
		live = sample.New(cfg.SampleSeed)
	}
	a.provider = marketdata.New(marketdata.Config{
		TTL:          cfg.CacheTTL,
		FetchTimeout: cfg.FetchTimeout,
		Universe:     cfg.Universe,
	}, marketdata.Deps{
		Live:    live,
		Store:   snapshots,
		Series:  series,
		Session: session.Regular(),
		Metrics: a.metrics,
		Logger:  log,
	})
	if err := a.provider.Warm(ctx); err != nil {
		log.Warn("no stored snapshot loaded", "error", err)
	}

	// ---- Portfolio and execution ----
	a.portfolio, err = portfolio.Open(ctx, pstore, cfg.StartingCash,
		portfolio.WithMetrics(a.metrics), portfolio.WithLogger(log))
	if err != nil {
		return nil, err
	}
	a.engine = execution.NewEngine(a.portfolio, a.provider, a.metrics, log)

	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	a.guard, err = guardrail.New(strat.Guardrails, guardrail.Deps{
		Engine:   a.engine,
		Prices:   a.provider,
		Session:  session,
		Notifier: notifiers,
		Metrics:  a.metrics,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	a.analyzer = analyzer.New(a.provider, log)

	ok = true
	return a, nil
}

// market returns analyses of the whole universe, refreshing live when the
// cached snapshot is missing or past its TTL.
func (a *app) market(ctx context.Context) ([]analyzer.Analysis, error) {
	snap := a.provider.Snapshot()
	if snap == nil || snap.Age(a.portfolio.Now()) >= a.cfg.CacheTTL {
		fresh, err := a.provider.Refresh(ctx)
		switch {
		case err == nil:
			snap = fresh
		case snap != nil:
			a.log.Warn("refresh failed, using cached snapshot", "error", err, "generated_at", snap.GeneratedAt)
		default:
			return nil, err
		}
	}
	return analyzer.FromSnapshot(snap), nil
}

// Close releases the stores.
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.sqlite != nil {
		errs = append(errs, a.sqlite.Close())
	}
	return errors.Join(errs...)
}
