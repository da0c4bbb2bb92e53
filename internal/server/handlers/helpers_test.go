package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/jiucom/internal/models"
	"github.com/iudanet/jiucom/internal/server/storage"
	"github.com/iudanet/jiucom/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:          []byte("test-secret-key-which-is-long-enough"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
}

// mockUserStorage is a mock implementation of UserStorage for testing
type mockUserStorage struct {
	users           map[string]*models.User // email -> User
	createError     error
	getUserError    error
	updateLastLogin func(ctx context.Context, userID string, loginTime time.Time) error
	mu              sync.Mutex
}

func newMockUserStorage(users ...*models.User) *mockUserStorage {
	m := &mockUserStorage{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return m
}

func (m *mockUserStorage) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return m.createError
	}
	for _, u := range m.users {
		if u.Email == user.Email || u.Nickname == user.Nickname {
			return storage.ErrUserAlreadyExists
		}
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	user, ok := m.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *mockUserStorage) UpdateLastLogin(ctx context.Context, userID string, loginTime time.Time) error {
	if m.updateLastLogin != nil {
		return m.updateLastLogin(ctx, userID, loginTime)
	}
	return nil
}

// mockTokenStorage is a mock implementation of TokenStorage for testing
type mockTokenStorage struct {
	tokens        map[string]*models.RefreshToken // token -> RefreshToken
	saveError     error
	getError      error
	deleteError   error
	rotateError   error
	savedTokens   []*models.RefreshToken // Track all saved tokens
	deletedTokens []string               // Track deleted tokens
	mu            sync.Mutex
}

func newMockTokenStorage(tokens ...*models.RefreshToken) *mockTokenStorage {
	m := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	for _, t := range tokens {
		m.tokens[t.Token] = t
	}
	return m
}

func (m *mockTokenStorage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.tokens[token.Token] = token
	m.savedTokens = append(m.savedTokens, token)
	return nil
}

func (m *mockTokenStorage) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	rt, ok := m.tokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	return rt, nil
}

func (m *mockTokenStorage) RotateRefreshToken(ctx context.Context, old string, next *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rotateError != nil {
		return m.rotateError
	}
	if _, ok := m.tokens[old]; !ok {
		return storage.ErrTokenNotFound
	}
	delete(m.tokens, old)
	m.deletedTokens = append(m.deletedTokens, old)
	m.tokens[next.Token] = next
	m.savedTokens = append(m.savedTokens, next)
	return nil
}

func (m *mockTokenStorage) DeleteRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteError != nil {
		return m.deleteError
	}
	if _, ok := m.tokens[token]; !ok {
		return storage.ErrTokenNotFound
	}
	delete(m.tokens, token)
	m.deletedTokens = append(m.deletedTokens, token)
	return nil
}

func (m *mockTokenStorage) DeleteExpiredTokens(ctx context.Context) (int, error) {
	return 0, nil
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeData unwraps the success envelope into dst
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env api.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.True(t, env.IsEnvelope(), "response must be wrapped in an envelope")
	require.True(t, *env.Success)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// decodeError reads the error body
func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// withUser emulates AuthMiddleware
func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(WithClaims(req.Context(), &CustomClaims{UserID: userID, Role: models.RoleUser}))
}
