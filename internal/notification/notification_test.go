package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "stop loss", Message: "SNDL -14%", Symbol: "SNDL"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != "WARNING" || got.Symbol != "SNDL" || got.TS == "" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

type failing struct{ err error }

func (f failing) Send(context.Context, Alert) error { return f.err }

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	logN := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	boom := errors.New("boom")

	err := Multi{failing{boom}, nil, logN}.Send(context.Background(), Alert{Level: AlertCritical, Title: "guardrail"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), "guardrail") || !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("log notifier output = %q", buf.String())
	}
}
