// Package logger sets up structured JSON logging with log/slog. Records
// logged with a context carrying a refresh or advisor-session trace are
// tagged with it, so one refresh or one session can be followed through
// the provider, the guardrails and the execution engine.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Trace kinds.
const (
	KindRefresh = "refresh"
	KindSession = "session"
)

// Trace identifies one unit of work in the log.
type Trace struct {
	Kind string
	ID   string
}

type traceKey struct{}

// New creates a JSON logger on w tagged with service and installs it as
// the slog default. The refresher logs to stdout, the CLI to stderr so that
// stdout stays free for command output.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := traceHandler{slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}
	l := slog.New(h).With(slog.String("service", service))
	slog.SetDefault(l)
	return l
}

// ParseLevel maps debug, info, warn and error (any case) to a level.
// Empty input is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// WithRefresh tags ctx with the refresh that started at, e.g.
// "refresh-1767625200". Refreshes are at most one per second.
func WithRefresh(ctx context.Context, at time.Time) context.Context {
	return context.WithValue(ctx, traceKey{}, Trace{Kind: KindRefresh, ID: fmt.Sprintf("%s-%d", KindRefresh, at.Unix())})
}

// WithSession tags ctx with the advisor session that started at, e.g.
// "session-20260105T150000.123Z".
func WithSession(ctx context.Context, at time.Time) context.Context {
	id := KindSession + "-" + at.UTC().Format("20060102T150405.000Z")
	return context.WithValue(ctx, traceKey{}, Trace{Kind: KindSession, ID: id})
}

// TraceFrom returns the trace carried by ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	if ctx == nil {
		return Trace{}, false
	}
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}

// traceHandler adds trace_id and trace_kind to records logged with a
// traced context.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if t, ok := TraceFrom(ctx); ok {
		r.AddAttrs(slog.String("trace_id", t.ID), slog.String("trace_kind", t.Kind))
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}
