// Command refresher keeps the shared market-data snapshot current. It
// fetches the universe on an interval, publishes each snapshot to Redis
// (or the snapshot file), caches bars in SQLite and serves /metrics and
// /healthz.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tradersim/config"
	"tradersim/internal/logger"
	"tradersim/internal/marketdata"
	"tradersim/internal/marketdata/alpaca"
	"tradersim/internal/marketdata/sample"
	"tradersim/internal/metrics"
	"tradersim/internal/model"
	"tradersim/internal/portfolio"
	"tradersim/internal/store/jsonfile"
	redisstore "tradersim/internal/store/redis"
	sqlitestore "tradersim/internal/store/sqlite"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred closes run before the process exits.
func run() int {
	var (
		interval    time.Duration
		once        bool
		marketHours bool
		metricsAddr string
	)
	flag.DurationVar(&interval, "interval", 0, "Refresh interval (defaults to TRADERSIM_REFRESH_INTERVAL)")
	flag.BoolVar(&once, "once", false, "Refresh once and exit")
	flag.BoolVar(&marketHours, "market-hours", false, "Skip refreshes outside regular trading hours")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Metrics and health listen address (defaults to METRICS_ADDR)")
	flag.Parse()

	// ---- Load config from env ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		return 1
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("bad log level", "error", err)
		return 1
	}
	log := logger.New(os.Stdout, "refresher", level)

	if interval <= 0 {
		interval = cfg.RefreshInterval
	}
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Error("strategy load failed", "error", err)
		return 1
	}
	session, err := strat.Session()
	if err != nil {
		log.Error("bad schedule", "error", err)
		return 1
	}

	// ---- Setup context for graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Setup metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	health.MaxRefreshAge = 3 * interval
	metricsSrv := metrics.NewServer(metricsAddr, health, reg)
	if !once {
		metricsSrv.Start()
	}

	// ---- SQLite bar cache ----
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("data dir", "error", err)
		return 1
	}
	sqlStore, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath()})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		return 1
	}
	defer sqlStore.Close()
	log.Info("sqlite bar cache ready", "path", cfg.SQLitePath())

	// ---- Snapshot store: Redis, else the snapshot file ----
	var snapshots model.SnapshotStore = jsonfile.NewSnapshotStore(cfg.SnapshotPath())
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		redisStore, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Warn("redis init failed, writing the snapshot file instead", "error", err)
			health.SetRedisConnected(false)
		} else {
			defer redisStore.Close()
			snapshots = redisStore
			rdb = redisStore.Client()
			health.SetRedisConnected(true)
			log.Info("redis snapshot store ready", "addr", cfg.RedisAddr)
		}
	}

	// ---- Periodic liveness checks ----
	health.StartLivenessChecker(ctx, rdb, sqlStore.DB(), 10*time.Second)

	// ---- Live source ----
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
		log.Warn("no Alpaca credentials or sample mode requested, using the sample market", "seed", cfg.SampleSeed)
	}

	provider := marketdata.New(marketdata.Config{
		TTL:             cfg.CacheTTL,
		FetchTimeout:    cfg.FetchTimeout,
		Universe:        cfg.Universe,
		MarketHoursOnly: marketHours,
	}, marketdata.Deps{
		Live:    live,
		Store:   snapshots,
		Series:  sqlStore,
		Session: session.Regular(),
		Metrics: prom,
		Logger:  log,
	})
	if err := provider.Warm(ctx); err != nil {
		log.Warn("no stored snapshot loaded", "error", err)
	}

	var pstore model.PortfolioStore = jsonfile.New(cfg.PortfolioPath())
	if cfg.Store == config.StoreSQLite {
		pstore = sqlStore
	}

	log.Info("refresher starting",
		"source", live.Name(), "universe", len(cfg.Universe), "interval", interval.String(), "market_hours_only", marketHours)

	onRefresh := func(snap *model.Snapshot, err error) {
		now := time.Now()
		rctx := logger.WithRefresh(ctx, now)
		health.SetBreakerState(provider.BreakerState().String())
		if err != nil {
			health.SetRefresh(now, false, 0)
			return
		}
		health.SetRefresh(now, true, snap.StocksFetched)
		log.InfoContext(rctx, "snapshot published",
			"fetched", snap.StocksFetched, "failed", len(snap.StocksFailed), "seconds", snap.FetchTimeSeconds)
		valuePortfolio(rctx, log, pstore, provider, prom)
	}

	if once {
		snap, err := provider.Refresh(ctx)
		if err != nil {
			log.Error("refresh failed", "error", err)
			return 1
		}
		onRefresh(snap, nil)
		return 0
	}

	provider.Run(ctx, interval, onRefresh)

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Stop(shutdownCtx)
	return 0
}

// valuePortfolio reloads the portfolio the CLI trades and updates the
// portfolio gauges at the new prices.
func valuePortfolio(ctx context.Context, log *slog.Logger, store model.PortfolioStore, pricer portfolio.Pricer, m *metrics.Metrics) {
	state, found, err := store.Load(ctx)
	if err != nil {
		log.Warn("portfolio load failed", "error", err)
		return
	}
	if !found {
		return
	}
	st := portfolio.Valuate(state, portfolio.Prices(ctx, state, pricer))
	m.SetPortfolio(st.TotalValue.InexactFloat64(), st.Cash.InexactFloat64())
	log.DebugContext(ctx, "portfolio valued", "total", st.TotalValue.StringFixed(2))
}
