package api

import (
	"encoding/json"
	"time"
)

// Envelope is the success wrapper every JSON endpoint of the backend uses.
// Success is a pointer so that a body lacking the field can be told apart
// from an explicit false.
type Envelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsEnvelope reports whether the decoded body actually carried the wrapper.
func (e *Envelope) IsEnvelope() bool {
	return e.Success != nil && e.Data != nil
}

// NewEnvelope wraps data into a success envelope.
func NewEnvelope(data any, message string) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	ok := true
	return &Envelope{
		Success:   &ok,
		Message:   message,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ErrorResponse представляет тело ответа с ошибкой
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`    // машинный код ошибки, например JIUCOM-A003
	Message   string    `json:"message"` // описание ошибки
}

// Коды ошибок, которые возвращает backend.
const (
	CodeUnauthorized   = "JIUCOM-A001"
	CodeAccessDenied   = "JIUCOM-A002"
	CodeExpiredToken   = "JIUCOM-A003"
	CodeInvalidToken   = "JIUCOM-A004"
	CodeBadCredentials = "JIUCOM-A005"
	CodeInvalidInput   = "JIUCOM-C001"
	CodeNotFound       = "JIUCOM-C002"
	CodeConflict       = "JIUCOM-C003"
	CodeTooManyRequest = "JIUCOM-C004"
	CodeInternal       = "JIUCOM-C999"
)
