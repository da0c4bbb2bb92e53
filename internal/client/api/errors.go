package api

import (
	"errors"
	"fmt"
	"net/http"
)

// errNoRefreshToken возвращается Refresh при пустом токене
var errNoRefreshToken = errors.New("refresh token is empty")

// Error is a non-2xx answer from the backend.
type Error struct {
	Code       string // машинный код из тела ответа, может быть пустым
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode возвращает HTTP статус, если err содержит *Error, иначе 0
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized сообщает, что сервер ответил 401
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsClientError сообщает, что сервер ответил 4xx, кроме 408 и 429.
// Для refresh это означает окончательный отказ, а не временный сбой.
func IsClientError(err error) bool {
	code := StatusCode(err)
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
