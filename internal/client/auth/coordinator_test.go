package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/jiucom/internal/client/api"
	"github.com/iudanet/jiucom/internal/models"
	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// fakeRefresher records refresh calls; gate, when set, holds the call open
type fakeRefresher struct {
	err   error
	resp  *pkgapi.TokenResponse
	gate  chan struct{}
	got   []string
	calls atomic.Int32
	mu    sync.Mutex
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.got = append(f.got, refreshToken)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestStore(t *testing.T, cred *models.Credential) *TokenStore {
	t.Helper()
	ts := NewTokenStore(&memAuthStorage{})
	if cred != nil {
		require.NoError(t, ts.Set(context.Background(), *cred))
	}
	return ts
}

func waitForState(t *testing.T, c *Coordinator, want RefreshState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, time.Second, time.Millisecond)
}

func TestCoordinator_SingleRefreshForConcurrentCallers(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &fakeRefresher{
		gate: make(chan struct{}),
		resp: &pkgapi.TokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}
	c := NewCoordinator(store, refresher)

	const callers = 10
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.EnsureValid(context.Background(), "A1")
		}()
	}

	waitForState(t, c, StateRefreshing)
	close(refresher.gate)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load(), "exactly one refresh call")
	assert.Equal(t, []string{"R1"}, refresher.got)
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "A2", results[i])
	}
	assert.Equal(t, &models.Credential{AccessToken: "A2", RefreshToken: "R2"}, store.Get())
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinator_StaleTokenAlreadyReplaced(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A2", RefreshToken: "R2"})
	refresher := &fakeRefresher{}
	c := NewCoordinator(store, refresher)

	token, err := c.EnsureValid(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "A2", token)
	assert.Zero(t, refresher.calls.Load(), "no network call when a newer token exists")
}

func TestCoordinator_RejectedClearsSession(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &fakeRefresher{
		gate: make(chan struct{}),
		err:  &api.Error{StatusCode: http.StatusUnauthorized, Code: pkgapi.CodeInvalidToken, Message: "invalid refresh token"},
	}
	c := NewCoordinator(store, refresher)

	var forced atomic.Int32
	c.OnForcedLogout(func(err error) {
		assert.ErrorIs(t, err, ErrRefreshRejected)
		forced.Add(1)
	})

	errs := make(chan error, 3)
	for range 3 {
		go func() {
			_, err := c.EnsureValid(context.Background(), "A1")
			errs <- err
		}()
	}

	waitForState(t, c, StateRefreshing)
	close(refresher.gate)

	for range 3 {
		assert.ErrorIs(t, <-errs, ErrRefreshRejected)
	}
	assert.Nil(t, store.Get(), "credential cleared")
	// обработчик вызывается после освобождения ожидающих
	require.Eventually(t, func() bool { return forced.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestCoordinator_TransientFailureKeepsSession(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &fakeRefresher{err: errors.New("connection refused")}
	c := NewCoordinator(store, refresher)

	var forced atomic.Int32
	c.OnForcedLogout(func(error) { forced.Add(1) })

	_, err := c.EnsureValid(context.Background(), "A1")
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.NotErrorIs(t, err, ErrRefreshRejected)

	assert.Equal(t, "A1", store.AccessToken(), "credential kept on transient failure")
	assert.Zero(t, forced.Load())
	assert.Equal(t, StateIdle, c.State())

	// 5xx тоже временный сбой
	refresher.err = &api.Error{StatusCode: http.StatusBadGateway, Message: "bad gateway"}
	_, err = c.EnsureValid(context.Background(), "A1")
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, int32(2), refresher.calls.Load())
}

func TestCoordinator_MissingRefreshToken(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1"})
	refresher := &fakeRefresher{}
	c := NewCoordinator(store, refresher)

	forced := make(chan error, 1)
	c.OnForcedLogout(func(err error) { forced <- err })

	_, err := c.EnsureValid(context.Background(), "A1")
	require.ErrorIs(t, err, ErrRefreshRejected)
	assert.Nil(t, store.Get())
	assert.Zero(t, refresher.calls.Load())
	assert.ErrorIs(t, <-forced, ErrRefreshRejected)
}

func TestCoordinator_NoSession(t *testing.T) {
	c := NewCoordinator(newTestStore(t, nil), &fakeRefresher{})

	_, err := c.EnsureValid(context.Background(), "A1")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, c.AccessToken())
}

func TestCoordinator_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	c := NewCoordinator(store, &fakeRefresher{resp: &pkgapi.TokenResponse{AccessToken: "A2"}})

	token, err := c.EnsureValid(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "A2", token)
	assert.Equal(t, &models.Credential{AccessToken: "A2", RefreshToken: "R1"}, store.Get())
}

func TestCoordinator_CallerCancelDoesNotAbortRefresh(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &fakeRefresher{
		gate: make(chan struct{}),
		resp: &pkgapi.TokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}
	c := NewCoordinator(store, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	initiator := make(chan error, 1)
	go func() {
		_, err := c.EnsureValid(ctx, "A1")
		initiator <- err
	}()
	waitForState(t, c, StateRefreshing)

	other := make(chan string, 1)
	go func() {
		token, _ := c.EnsureValid(context.Background(), "A1")
		other <- token
	}()

	cancel()
	assert.ErrorIs(t, <-initiator, context.Canceled)

	close(refresher.gate)
	assert.Equal(t, "A2", <-other)
	assert.Equal(t, "A2", store.AccessToken())
}

func TestCoordinator_LogoutDuringRefresh(t *testing.T) {
	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &fakeRefresher{
		gate: make(chan struct{}),
		resp: &pkgapi.TokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}
	c := NewCoordinator(store, refresher)

	result := make(chan error, 1)
	go func() {
		_, err := c.EnsureValid(context.Background(), "A1")
		result <- err
	}()
	waitForState(t, c, StateRefreshing)

	// Пользователь вышел, пока refresh был в полете
	require.NoError(t, store.Clear(context.Background()))
	close(refresher.gate)

	assert.ErrorIs(t, <-result, ErrNoSession)
	assert.Nil(t, store.Get(), "refresh must not resurrect a cleared session")
}

// Три запроса с A1 получают 401, выполняется ровно один refresh с R1,
// все три повторяются с Bearer A2, в хранилище остается A2/R2.
func TestCoordinator_GatewayScenario(t *testing.T) {
	var (
		refreshCalls atomic.Int32
		unauthorized atomic.Int32
		mu           sync.Mutex
		replays      []string
	)
	released := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var req pkgapi.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "R1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		<-released
		env, _ := pkgapi.NewEnvelope(pkgapi.TokenResponse{AccessToken: "A2", RefreshToken: "R2", TokenType: "Bearer"}, "")
		_ = json.NewEncoder(w).Encode(env)
	})
	mux.HandleFunc("GET /notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			if unauthorized.Add(1) == 3 {
				close(released)
			}
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(pkgapi.ErrorResponse{Code: pkgapi.CodeExpiredToken, Message: "expired"})
			return
		}
		mu.Lock()
		replays = append(replays, r.Header.Get("Authorization"))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(pkgapi.UnreadCountResponse{UnreadCount: 3})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newTestStore(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	coordinator := NewCoordinator(store, api.NewClient(srv.URL))
	client := api.NewClient(srv.URL, api.WithTokenSource(coordinator))

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := client.UnreadCount(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, int64(3), n)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, []string{"Bearer A2", "Bearer A2", "Bearer A2"}, replays)
	assert.Equal(t, &models.Credential{AccessToken: "A2", RefreshToken: "R2"}, store.Get())
}
