package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradersim/internal/analyzer"
)

// chdir moves into dir for the test so Load sees no stray .env file.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.CacheTTL != 600*time.Second || c.FetchTimeout != 10*time.Second {
		t.Errorf("ttl=%s timeout=%s", c.CacheTTL, c.FetchTimeout)
	}
	if c.Store != StoreJSON || c.StartingCash.String() != "1000" {
		t.Errorf("store=%s cash=%s", c.Store, c.StartingCash)
	}
	if len(c.Universe) != len(DefaultUniverse) || c.UseLive() {
		t.Errorf("universe=%d live=%v", len(c.Universe), c.UseLive())
	}
	if c.PortfolioPath() != filepath.Join("data", "portfolio.json") {
		t.Errorf("portfolio path = %s", c.PortfolioPath())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRADERSIM_CACHE_TTL", "90")
	t.Setenv("TRADERSIM_FETCH_TIMEOUT", "2s")
	t.Setenv("TRADERSIM_STORE", "SQLite")
	t.Setenv("TRADERSIM_UNIVERSE", "nvda, pltr,,")
	t.Setenv("TRADERSIM_STARTING_CASH", "2500.50")
	t.Setenv("APCA_API_KEY_ID", "key")
	t.Setenv("APCA_API_SECRET_KEY", "secret")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.CacheTTL != 90*time.Second || c.FetchTimeout != 2*time.Second || c.Store != StoreSQLite {
		t.Errorf("config = %+v", c)
	}
	if len(c.Universe) != 2 || c.Universe[0] != "NVDA" || c.Universe[1] != "PLTR" {
		t.Errorf("universe = %v", c.Universe)
	}
	if c.StartingCash.String() != "2500.5" || !c.UseLive() {
		t.Errorf("cash=%s live=%v", c.StartingCash, c.UseLive())
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("TRADERSIM_DATA_DIR=/var/lib/tradersim\n"), 0o644)
	t.Setenv("TRADERSIM_DATA_DIR", "") // let .env fill it
	os.Unsetenv("TRADERSIM_DATA_DIR")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.DataDir != "/var/lib/tradersim" {
		t.Errorf("data dir = %s", c.DataDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRADERSIM_CACHE_TTL", "soon")
	t.Setenv("TRADERSIM_STORE", "postgres")
	t.Setenv("TRADERSIM_SAMPLE_DATA", "maybe")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseStrategy_OverridesDefaults(t *testing.T) {
	s, err := ParseStrategy([]byte(`
guardrails:
  max_positions: 3
  blocked_symbols: [GME, AMC]
schedule:
  skip_first_minutes: 0
screens:
  Cheap:
    max_price: 10
    sort_by: volume
`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Guardrails.MaxPositions != 3 || len(s.Guardrails.BlockedSymbols) != 2 {
		t.Errorf("guardrails = %+v", s.Guardrails)
	}
	if s.Guardrails.MaxPositionPct != 0.25 || s.Guardrails.StopLossPct != 0.12 {
		t.Errorf("unset guardrails should keep defaults: %+v", s.Guardrails)
	}
	if s.Schedule.SkipFirstMinutes != 0 || s.Schedule.MarketOpen != "09:30" {
		t.Errorf("schedule = %+v", s.Schedule)
	}

	sc, err := s.Screen("cheap")
	if err != nil {
		t.Fatal(err)
	}
	if c := sc.Criteria(); c.SortBy != analyzer.SortVolume || *c.MaxPrice != 10 {
		t.Errorf("criteria = %+v", c)
	}
	if _, err := s.Screen("oversold"); err != nil {
		t.Errorf("presets should still resolve: %v", err)
	}
}

func TestParseStrategy_Rejects(t *testing.T) {
	bad := []string{
		"guardrails:\n  max_position_pct: 2\n",
		"guardrails:\n  max_postions: 3\n",
		"schedule:\n  market_open: '17:00'\n",
		"screens:\n  x:\n    above_sma: [200]\n",
	}
	for _, y := range bad {
		if _, err := ParseStrategy([]byte(y)); err == nil {
			t.Errorf("expected error for:\n%s", y)
		}
	}
}

func TestLoadStrategy_EmptyPathIsDefault(t *testing.T) {
	s, err := LoadStrategy("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Guidance == "" || !s.Guardrails.EnforceTradingHours {
		t.Errorf("strategy = %+v", s)
	}
	if _, err := LoadStrategy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
