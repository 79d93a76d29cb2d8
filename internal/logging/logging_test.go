package logging

import (
	"testing"

	"log/slog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"warn":     slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"ERROR":    slog.LevelError,
		"":         slog.LevelInfo,
		"gibberis": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerInstallsDefault(t *testing.T) {
	logger := NewLogger("info", "turbonote", "test")
	if slog.Default() != logger {
		t.Fatalf("expected the constructed logger to become the slog default")
	}
}
