package api

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingTransport wraps an http.RoundTripper and logs every exchange.
// Headers and bodies are never logged: they carry tokens and passwords.
type LoggingTransport struct {
	Transport http.RoundTripper
	logger    *slog.Logger
}

// NewLoggingTransport creates a new logging transport wrapper
func NewLoggingTransport(transport http.RoundTripper, logger *slog.Logger) *LoggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if lt, ok := transport.(*LoggingTransport); ok {
		transport = lt.Transport
	}
	return &LoggingTransport{
		Transport: transport,
		logger:    logger,
	}
}

// RoundTrip executes a single HTTP transaction with logging
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.logger.DebugContext(req.Context(), "HTTP request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, err
	}

	t.logger.DebugContext(req.Context(), "HTTP request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration))

	return resp, nil
}
