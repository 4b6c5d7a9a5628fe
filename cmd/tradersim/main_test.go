package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tradersim/internal/advisor"
	"tradersim/internal/execution"
	"tradersim/internal/model"
	"tradersim/internal/portfolio"
)

func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TRADERSIM_DATA_DIR", dir)
	t.Setenv("TRADERSIM_SAMPLE_DATA", "true")
	t.Setenv("TRADERSIM_UNIVERSE", "KO,PEP")
	t.Setenv("TRADERSIM_STARTING_CASH", "10000")
	t.Setenv("TRADERSIM_STORE", "json")
	t.Setenv("TRADERSIM_STRATEGY", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if a != nil {
		a.Close()
		a = nil
	}
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestCLI_BuyStatusSellHistory(t *testing.T) {
	dir := sandbox(t)

	out, err := run(t, "buy", "KO", "2", "--json")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	trade := decode[model.Trade](t, out)
	if trade.Side != model.SideBuy || trade.Shares != 2 || trade.Symbol != "KO" {
		t.Fatalf("trade = %+v", trade)
	}
	if want := decimal.NewFromInt(10000).Sub(trade.Total); !trade.CashAfter.Equal(want) {
		t.Errorf("cash after = %s, want %s", trade.CashAfter, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "portfolio.json")); err != nil {
		t.Errorf("portfolio not persisted: %v", err)
	}

	out, err = run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st := decode[portfolio.Status](t, out)
	if st.NumHoldings != 1 || st.Holdings[0].Symbol != "KO" || st.Holdings[0].Shares != 2 {
		t.Errorf("status = %+v", st)
	}

	_, err = run(t, "sell", "KO", "5")
	if !errors.Is(err, execution.ErrInsufficientShares) {
		t.Errorf("oversell: expected ErrInsufficientShares, got %v", err)
	}
	if _, err := run(t, "sell", "KO", "two"); err == nil {
		t.Error("non-numeric shares should fail")
	}

	out, err = run(t, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if trades := decode[[]model.Trade](t, out); len(trades) != 1 {
		t.Errorf("history has %d trades, want 1", len(trades))
	}
}

func TestCLI_ApplyLogsSession(t *testing.T) {
	dir := sandbox(t)
	decision := filepath.Join(dir, "decision.txt")
	text := `Here is my plan.
{"analysis": "PEP looks oversold", "trades": [{"action": "BUY", "symbol": "PEP", "shares": 1, "reasoning": "bounce"}], "hold_reasoning": ""}`
	if err := os.WriteFile(decision, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "apply", decision, "--no-stops", "--json")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Whether the trade runs depends on the trading-hours gate at test
	// time; either way it is accounted for exactly once.
	res := decode[advisor.Outcome](t, out)
	if len(res.Executed)+len(res.Skipped) != 1 {
		t.Errorf("outcome = %+v", res)
	}

	out, err = run(t, "sessions", "--json")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	sessions := decode[[]advisor.Session](t, out)
	if len(sessions) != 1 || sessions[0].Analysis != "PEP looks oversold" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestCLI_ResetNeedsConfirmation(t *testing.T) {
	sandbox(t)
	if _, err := run(t, "reset"); err == nil {
		t.Fatal("reset without --yes should fail")
	}
	out, err := run(t, "reset", "--yes", "--cash", "500")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "$500.00") {
		t.Errorf("output = %q", out)
	}
}

func TestCLI_ScreenList(t *testing.T) {
	sandbox(t)
	out, err := run(t, "screen", "--list")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"default", "oversold", "momentum"} {
		if !strings.Contains(out, name) {
			t.Errorf("screen list missing %s: %q", name, out)
		}
	}
}

func TestPct(t *testing.T) {
	cases := map[string]string{"1.5": "+1.50%", "0": "0.00%", "-2.25": "-2.25%"}
	for in, want := range cases {
		if got := pct(decimal.RequireFromString(in)); got != want {
			t.Errorf("pct(%s) = %s, want %s", in, got, want)
		}
	}
}
