package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/jiucom/pkg/api"
)

// sendJSON отправляет JSON ответ как есть
func sendJSON(w http.ResponseWriter, logger *slog.Logger, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendData оборачивает data в envelope {success, message, data, timestamp}
func sendData(w http.ResponseWriter, logger *slog.Logger, data any, message string, statusCode int) {
	env, err := api.NewEnvelope(data, message)
	if err != nil {
		logger.Error("failed to build response envelope", slog.Any("error", err))
		SendError(w, logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}
	sendJSON(w, logger, env, statusCode)
}

// SendError отправляет тело ошибки {code, message, timestamp}.
// Экспортирована для middleware, чтобы все ошибки имели одну форму.
func SendError(w http.ResponseWriter, logger *slog.Logger, code, message string, statusCode int) {
	resp := api.ErrorResponse{
		Timestamp: time.Now().UTC(),
		Code:      code,
		Message:   message,
	}
	sendJSON(w, logger, resp, statusCode)
}

// decodeJSON читает тело запроса не больше maxBodySize байт
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	return dec.Decode(dst)
}

const maxBodySize = 1 << 20
