// Package observability provides structured logging and Prometheus
// metrics for the bridge.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format specifies output format: "json" or "text". JSON is the
	// production default; text is easier to read during development.
	Format string

	// Output is the writer for log output (defaults to os.Stdout).
	Output io.Writer
}

// NewLogger creates a slog.Logger from the given configuration.
// Invalid or empty values fall back to info-level JSON on stdout.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// Component returns a child logger tagged with a component name, the
// convention every package in this repo uses for log attribution.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
