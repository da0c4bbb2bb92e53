package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/jiucom/pkg/api"
)

func TestRecoveryMiddleware_PanicBecomesInternalError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	panics := map[string]any{
		"string": "nil map in publisher",
		"error":  io.ErrUnexpectedEOF,
		"struct": struct{ secret string }{"refresh-token-value"},
	}

	for name, value := range panics {
		t.Run(name, func(t *testing.T) {
			handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(value)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications", nil))

			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, api.CodeInternal, resp.Code)
			assert.NotContains(t, resp.Message, "refresh-token-value", "panic value must not leak to the client")
		})
	}
}

func TestRecoveryMiddleware_PassesThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(statusHandler(http.StatusAccepted, "queued"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "queued", w.Body.String())
}

func TestRecoveryMiddleware_RepanicsAbortHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	})
}

func TestRecoveryMiddleware_WithLogging(t *testing.T) {
	logger, buf := bufferedLogger()

	// Порядок как в роутере: recovery -> logging -> handler
	handler := RecoveryMiddleware(logger)(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom in handler")
	})))

	req := httptest.NewRequest(http.MethodPatch, "/notifications/3/read", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	out := buf.String()
	assert.Contains(t, out, "Panic recovered")
	assert.Contains(t, out, "boom in handler")
	assert.Contains(t, out, "/notifications/3/read")
	assert.Contains(t, out, "goroutine", "stack trace is logged")
}
