package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedLogger() (*slog.Logger, *strings.Builder) {
	var buf strings.Builder
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func statusHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		status    int
		wantLevel string
	}{
		{name: "list notifications", method: http.MethodGet, path: "/notifications", status: http.StatusOK, wantLevel: "level=INFO"},
		{name: "mark read", method: http.MethodPatch, path: "/notifications/7/read", status: http.StatusNoContent, wantLevel: "level=INFO"},
		{name: "expired token", method: http.MethodGet, path: "/users/me", status: http.StatusUnauthorized, wantLevel: "level=WARN"},
		{name: "storage failure", method: http.MethodPost, path: "/auth/refresh", status: http.StatusInternalServerError, wantLevel: "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferedLogger()
			handler := LoggingMiddleware(logger)(statusHandler(tt.status, "{}"))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "10.0.0.5:40000"
			req.Header.Set("User-Agent", "jiucom-cli/1.0")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)

			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "method="+tt.method)
			assert.Contains(t, out, "path="+tt.path)
			assert.Contains(t, out, "10.0.0.5:40000")
			assert.Contains(t, out, "jiucom-cli/1.0")
			assert.Contains(t, out, "duration_ms")
		})
	}
}

func TestLoggingMiddleware_BytesWritten(t *testing.T) {
	logger, buf := bufferedLogger()
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Без явного WriteHeader статус 200
		_, _ = w.Write([]byte(`{"unreadCount":`))
		_, _ = w.Write([]byte(`3}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/notifications/unread-count", nil))

	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "bytes_written=17")
}

func TestLoggingWithSkip(t *testing.T) {
	logger, buf := bufferedLogger()
	handler := LoggingWithSkip(logger, []string{"/health"})(statusHandler(http.StatusOK, "ok"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String(), "health checks are not logged")

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/me", nil))
	assert.Contains(t, buf.String(), "path=/users/me")
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := LoggingMiddleware(logger)(statusHandler(http.StatusNoContent, ""))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})
}

func TestLoggingMiddleware_DoesNotLogAuthorization(t *testing.T) {
	logger, buf := bufferedLogger()
	handler := LoggingMiddleware(logger)(statusHandler(http.StatusOK, ""))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer secret-access-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "secret-access-token")
}

func TestResponseWriter_Hijack(t *testing.T) {
	// httptest.ResponseRecorder не умеет hijack
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.NotNil(t, rw.Unwrap())
}
