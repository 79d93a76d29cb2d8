package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger: human-readable text in dev, JSON
// elsewhere. The returned logger is also installed as the slog default so
// components constructed without one still log through it.
func NewLogger(level string, serviceName string, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if env == "dev" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("env", env),
	)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
