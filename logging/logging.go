// Package logging builds the process logger and the HTTP transport that logs
// provider API traffic.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a level name onto slog. Unknown names yield info and an
// error so the caller can warn about it.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// New returns a logger writing to w. Coloured output uses tint; otherwise a
// plain text handler.
func New(w io.Writer, level slog.Level, colored bool) *slog.Logger {
	if colored {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// Transport logs each request at debug level with its status and duration.
// Headers and bodies are never logged since they carry tokens and content.
type Transport struct {
	Base http.RoundTripper
	Log  *slog.Logger
}

// NewTransport wraps base (nil means http.DefaultTransport).
func NewTransport(base http.RoundTripper, log *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transport{Base: base, Log: log}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start)

	ctx := req.Context()
	if err != nil {
		t.Log.LogAttrs(ctx, slog.LevelDebug, "http request failed",
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.String("path", req.URL.Path),
			slog.Duration("duration", elapsed),
			tint.Err(err))
		return nil, err
	}
	t.Log.LogAttrs(ctx, levelFor(resp.StatusCode), "http request",
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed))
	return resp, nil
}

func levelFor(status int) slog.Level {
	if status >= 500 {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// Discard returns a logger that drops everything, for tests and quiet runs.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
