package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// maxResponseSize ограничивает размер читаемого ответа
const maxResponseSize = 4 << 20

//go:generate moq -out token_source_mock.go . TokenSource

// TokenSource supplies the bearer token and renews it after a 401.
// auth.Coordinator is the production implementation.
type TokenSource interface {
	// AccessToken returns the current access token or "" when signed out
	AccessToken() string

	// EnsureValid obtains a token newer than stale, refreshing at most once
	// for all concurrent callers
	EnsureValid(ctx context.Context, stale string) (string, error)
}

// authPaths never trigger a refresh on 401: their 401 means bad credentials
// or a dead refresh token, and retrying them would loop.
var authPaths = []string{
	"/auth/login",
	"/auth/signup",
	"/auth/refresh",
	"/auth/logout",
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	baseURL    string
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient подменяет http.Client (например, в тестах)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource включает авторизацию запросов и повтор после refresh
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger задает логгер; HTTP обмен пишется на уровне debug
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout задает таймаут одного HTTP запроса
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = NewLoggingTransport(c.httpClient.Transport, c.logger)

	return c
}

// BaseURL возвращает адрес API
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest выполняет запрос и, если access token устарел, один раз
// обновляет его через TokenSource и повторяет запрос с новым токеном.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	// Тело сериализуем один раз, чтобы повтор отправил те же байты
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var token string
	if c.tokens != nil {
		token = c.tokens.AccessToken()
	}

	err := c.send(ctx, method, path, payload, token, result)
	if err == nil || c.tokens == nil || !IsUnauthorized(err) || isAuthPath(path) {
		return err
	}

	fresh, refreshErr := c.tokens.EnsureValid(ctx, token)
	if refreshErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.DebugContext(ctx, "token refresh failed, returning original response",
			slog.String("path", path), slog.Any("error", refreshErr))
		return err
	}

	// Единственный повтор: повторный 401 возвращается вызывающему как есть
	return c.send(ctx, method, path, payload, fresh, result)
}

// send выполняет один HTTP обмен и разворачивает envelope успешного ответа
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string, result any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBody)
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(unwrap(respBody), result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// unwrap возвращает поле data, если тело - это envelope {success, data}.
// Любое другое тело возвращается без изменений.
func unwrap(body []byte) []byte {
	var env pkgapi.Envelope
	if err := json.Unmarshal(body, &env); err != nil || !env.IsEnvelope() {
		return body
	}
	return env.Data
}

func parseError(status int, body []byte) error {
	apiErr := &Error{StatusCode: status}

	var errResp pkgapi.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Code != "" || errResp.Message != "") {
		apiErr.Code = errResp.Code
		apiErr.Message = errResp.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func isAuthPath(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, p := range authPaths {
		if path == p {
			return true
		}
	}
	return false
}
