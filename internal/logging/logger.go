// Package logging defines a minimal structured-logging interface used across
// the project together with slog and zerolog backed implementations.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "starting server", "addr", addr, "mode", mode)
type Logger interface {
	// Debug logs verbose diagnostics.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Config selects and tunes a Logger backend.
type Config struct {
	Backend string // "zerolog" (default) or "slog"
	Level   string // debug, info, warn, error
	Format  string // json (default) or console/text
	Output  io.Writer
}

// New builds a Logger from cfg. Unknown values fall back to zerolog, info
// level and JSON output on stdout.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	if strings.EqualFold(cfg.Backend, "slog") {
		opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level)}
		var h slog.Handler
		if isConsole(cfg.Format) {
			h = slog.NewTextHandler(out, opts)
		} else {
			h = slog.NewJSONHandler(out, opts)
		}
		return NewSlogLogger(slog.New(h))
	}

	return NewZerologLogger(newZerolog(out, cfg.Level, cfg.Format))
}

func isConsole(format string) bool {
	f := strings.ToLower(format)
	return f == "console" || f == "text" || f == "pretty"
}

func slogLevel(level string) slog.Level {
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
