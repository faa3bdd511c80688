package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger_LevelParsing(t *testing.T) {
	cases := []struct {
		in      string
		enabled slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}

	for _, tc := range cases {
		log := NewLogger(tc.in, false)
		if !log.Enabled(context.Background(), tc.enabled) {
			t.Fatalf("level %q: expected %v enabled", tc.in, tc.enabled)
		}
		if tc.enabled > slog.LevelDebug && log.Enabled(context.Background(), tc.enabled-4) {
			t.Fatalf("level %q: expected %v disabled", tc.in, tc.enabled-4)
		}
	}
}

func TestPrettyHandler_Output(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.Info("http.request", "method", "GET", "path", "/dashboard/", "status", 200, "duration_ms", int64(12))

	out := buf.String()
	for _, want := range []string{"lvl=[INFO]", "msg=http.request", "method=GET", "path=/dashboard/", "status=200", "duration=12ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("pretty output missing %q: %s", want, out)
		}
	}
}

func TestPrettyHandler_QuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.Info("server.start", "note", "hello world")

	if !strings.Contains(buf.String(), `note="hello world"`) {
		t.Fatalf("expected quoted value: %s", buf.String())
	}
}

func TestPrettyHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).WithGroup("db")

	log.Info("db.ready", "conns", int64(3))

	if !strings.Contains(buf.String(), "db.conns=3") {
		t.Fatalf("expected grouped key: %s", buf.String())
	}
}
