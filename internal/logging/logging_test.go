package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"trace": LevelTrace,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)
	logger.Debug("hidden")
	logger.Info("classified sample", "run_id", "run-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record leaked at info level: %q", out)
	}
	if !strings.Contains(out, "classified sample") || !strings.Contains(out, "run-1") {
		t.Fatalf("expected info record, got %q", out)
	}
}

func TestTraceLevelEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New("trace", &buf)
	if !logger.Enabled(context.Background(), LevelTrace) {
		t.Fatal("expected trace level to be enabled")
	}
	logger.Log(context.Background(), LevelTrace, "tally")
	if !strings.Contains(buf.String(), "TRC") {
		t.Fatalf("expected trace label, got %q", buf.String())
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected a discard logger")
	}
}
