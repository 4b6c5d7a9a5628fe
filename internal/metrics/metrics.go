package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the simulator.
// Every method is safe on a nil receiver so components can run unobserved.
type Metrics struct {
	TradesTotal     *prometheus.CounterVec // labels: side
	TradeRejections *prometheus.CounterVec // labels: reason
	TradeValue      *prometheus.CounterVec // labels: side, dollars traded

	// Market data
	QuotesTotal       *prometheus.CounterVec // labels: source=LIVE|CACHED
	StaleQuotesTotal  prometheus.Counter
	LiveFetchDur      prometheus.Histogram
	LiveFetchFailures prometheus.Counter
	SnapshotAge       prometheus.Gauge

	// Refresh job
	RefreshTotal         prometheus.Counter
	RefreshSymbolsFailed prometheus.Counter
	RefreshDur           prometheus.Histogram

	// Circuit breaker around the live source
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter

	// Guardrails
	GuardrailViolations *prometheus.CounterVec // labels: rule
	StopLossTriggers    prometheus.Counter

	// Portfolio
	PortfolioValue prometheus.Gauge
	PortfolioCash  prometheus.Gauge
	StoreSaveDur   prometheus.Histogram
}

// NewMetrics creates all metrics and registers them on reg.
// A nil reg registers on the process default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradersim_trades_total",
			Help: "Trades executed by side",
		}, []string{"side"}),
		TradeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradersim_trade_rejections_total",
			Help: "Trades rejected by reason",
		}, []string{"reason"}),
		TradeValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradersim_trade_value_dollars_total",
			Help: "Dollar value of executed trades by side",
		}, []string{"side"}),

		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradersim_quotes_total",
			Help: "Price quotes served by source",
		}, []string{"source"}),
		StaleQuotesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradersim_stale_quotes_total",
			Help: "Cached quotes served past the freshness TTL",
		}),
		LiveFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradersim_live_fetch_duration_seconds",
			Help:    "Live market data fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LiveFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradersim_live_fetch_failures_total",
			Help: "Live fetches that failed or timed out",
		}),
		SnapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradersim_snapshot_age_seconds",
			Help: "Age of the in-memory market snapshot at the last read",
		}),

		RefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradersim_refresh_total",
			Help: "Completed market data refreshes",
		}),
		RefreshSymbolsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradersim_refresh_symbols_failed_total",
			Help: "Symbols that could not be fetched during a refresh",
		}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradersim_refresh_duration_seconds",
			Help:    "Full universe refresh latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradersim_live_circuit_breaker_state",
			Help: "Live source circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradersim_live_circuit_breaker_trips_total",
			Help: "Times the live source circuit breaker tripped open",
		}),

		GuardrailViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradersim_guardrail_violations_total",
			Help: "Proposals rejected by guardrail rule",
		}, []string{"rule"}),
		StopLossTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradersim_stop_loss_triggers_total",
			Help: "Stop-loss sell recommendations produced",
		}),

		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradersim_portfolio_value_dollars",
			Help: "Cash plus market value of holdings",
		}),
		PortfolioCash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradersim_portfolio_cash_dollars",
			Help: "Uninvested cash",
		}),
		StoreSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradersim_store_save_duration_seconds",
			Help:    "Portfolio persistence latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.TradesTotal,
		m.TradeRejections,
		m.TradeValue,
		m.QuotesTotal,
		m.StaleQuotesTotal,
		m.LiveFetchDur,
		m.LiveFetchFailures,
		m.SnapshotAge,
		m.RefreshTotal,
		m.RefreshSymbolsFailed,
		m.RefreshDur,
		m.BreakerState,
		m.BreakerTrips,
		m.GuardrailViolations,
		m.StopLossTriggers,
		m.PortfolioValue,
		m.PortfolioCash,
		m.StoreSaveDur,
	)

	return m
}

// ObserveTrade counts an executed trade.
func (m *Metrics) ObserveTrade(side string, value float64) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
	m.TradeValue.WithLabelValues(side).Add(value)
}

// ObserveRejection counts a rejected trade.
func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.TradeRejections.WithLabelValues(reason).Inc()
}

// ObserveQuote counts a served quote.
func (m *Metrics) ObserveQuote(source string, stale bool) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(source).Inc()
	if stale {
		m.StaleQuotesTotal.Inc()
	}
}

// ObserveLiveFetch records one live fetch attempt.
func (m *Metrics) ObserveLiveFetch(seconds float64, err error) {
	if m == nil {
		return
	}
	m.LiveFetchDur.Observe(seconds)
	if err != nil {
		m.LiveFetchFailures.Inc()
	}
}

// SetSnapshotAge records the age of the snapshot being served.
func (m *Metrics) SetSnapshotAge(seconds float64) {
	if m == nil {
		return
	}
	m.SnapshotAge.Set(seconds)
}

// ObserveRefresh records a completed refresh.
func (m *Metrics) ObserveRefresh(seconds float64, failed int) {
	if m == nil {
		return
	}
	m.RefreshTotal.Inc()
	m.RefreshDur.Observe(seconds)
	m.RefreshSymbolsFailed.Add(float64(failed))
}

// SetBreakerState records a breaker transition. Transitions into open count
// as a trip.
func (m *Metrics) SetBreakerState(state int, tripped bool) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
	if tripped {
		m.BreakerTrips.Inc()
	}
}

// ObserveViolation counts a guardrail rejection.
func (m *Metrics) ObserveViolation(rule string) {
	if m == nil {
		return
	}
	m.GuardrailViolations.WithLabelValues(rule).Inc()
}

// ObserveStopLoss counts stop-loss recommendations.
func (m *Metrics) ObserveStopLoss(n int) {
	if m == nil {
		return
	}
	m.StopLossTriggers.Add(float64(n))
}

// SetPortfolio records the latest valuation.
func (m *Metrics) SetPortfolio(total, cash float64) {
	if m == nil {
		return
	}
	m.PortfolioValue.Set(total)
	m.PortfolioCash.Set(cash)
}

// ObserveSave records a store write.
func (m *Metrics) ObserveSave(seconds float64) {
	if m == nil {
		return
	}
	m.StoreSaveDur.Observe(seconds)
}
