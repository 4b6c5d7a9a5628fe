package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.ObserveTrade("BUY", 100)
	m.ObserveRejection("insufficient_funds")
	m.ObserveQuote("LIVE", false)
	m.ObserveLiveFetch(0.1, nil)
	m.SetBreakerState(1, true)
	m.SetPortfolio(1, 1)
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTrade("BUY", 500)
	m.ObserveTrade("BUY", 250)
	m.ObserveTrade("SELL", 600)
	m.ObserveQuote("CACHED", true)
	m.SetBreakerState(1, true)

	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("BUY")); got != 2 {
		t.Errorf("BUY trades = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TradeValue.WithLabelValues("BUY")); got != 750 {
		t.Errorf("BUY value = %v, want 750", got)
	}
	if got := testutil.ToFloat64(m.StaleQuotesTotal); got != 1 {
		t.Errorf("stale quotes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BreakerTrips); got != 1 {
		t.Errorf("breaker trips = %v, want 1", got)
	}
}

func TestHealth_DegradedBeforeFirstRefresh(t *testing.T) {
	h := NewHealthStatus()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}

	h.SetRefresh(time.Now(), true, 42)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["stocks_fetched"].(float64) != 42 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHealth_StaleRefreshDegrades(t *testing.T) {
	h := NewHealthStatus()
	h.MaxRefreshAge = time.Minute
	h.SetRefresh(time.Now().Add(-2*time.Minute), true, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("expected degraded, got %s", rec.Body.String())
	}
}

func TestServer_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveTrade("SELL", 10)

	srv := NewServer(":0", NewHealthStatus(), reg)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `tradersim_trades_total{side="SELL"} 1`) {
		t.Errorf("metrics output missing trade counter:\n%s", rec.Body.String())
	}
}
