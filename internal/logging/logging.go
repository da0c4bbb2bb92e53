// Package logging builds the slog.Logger shared by the client and the server.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config описывает параметры логгера
type Config struct {
	Output  io.Writer // по умолчанию os.Stderr
	Service string
	Version string
	Level   string // debug, info, warn, error
	Format  string // json, text
}

// New returns a configured slog.Logger instance.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service, "version", cfg.Version)
	}

	return logger
}

// Discard возвращает логгер, который ничего не пишет (для тестов и тихого режима CLI)
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a string to slog.Level.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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
