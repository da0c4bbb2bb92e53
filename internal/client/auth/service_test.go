package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/jiucom/internal/client/api"
	"github.com/iudanet/jiucom/internal/models"
	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

type fakeGateway struct {
	onProfile  func(ctx context.Context)
	loginErr   error
	profileErr error
	logoutErr  error
	tokens     *pkgapi.TokenResponse
	profile    *pkgapi.UserProfile
	logouts    []string
	mu         sync.Mutex
}

func (g *fakeGateway) Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	return g.tokens, nil
}

func (g *fakeGateway) Signup(ctx context.Context, req pkgapi.SignupRequest) (*pkgapi.TokenResponse, error) {
	return g.Login(ctx, pkgapi.LoginRequest{Email: req.Email, Password: req.Password})
}

func (g *fakeGateway) Logout(ctx context.Context, refreshToken string) error {
	g.mu.Lock()
	g.logouts = append(g.logouts, refreshToken)
	g.mu.Unlock()
	return g.logoutErr
}

func (g *fakeGateway) Profile(ctx context.Context) (*pkgapi.UserProfile, error) {
	if g.onProfile != nil {
		g.onProfile(ctx)
	}
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	return g.profile, nil
}

type fakeChannel struct {
	started []models.Credential
	userIDs []string
	stops   int
	mu      sync.Mutex
}

func (c *fakeChannel) Start(ctx context.Context, cred models.Credential, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, cred)
	c.userIDs = append(c.userIDs, userID)
	return nil
}

func (c *fakeChannel) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

func (c *fakeChannel) starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.started)
}

type fakeSeeder struct {
	seeds  int
	resets int
	mu     sync.Mutex
}

func (s *fakeSeeder) Seed(ctx context.Context) error {
	s.mu.Lock()
	s.seeds++
	s.mu.Unlock()
	return nil
}

func (s *fakeSeeder) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

type serviceFixture struct {
	svc       *Service
	store     *TokenStore
	gateway   *fakeGateway
	channel   *fakeChannel
	seeder    *fakeSeeder
	refresher *fakeRefresher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		store: NewTokenStore(&memAuthStorage{}),
		gateway: &fakeGateway{
			tokens:  &pkgapi.TokenResponse{AccessToken: "A1", RefreshToken: "R1"},
			profile: &pkgapi.UserProfile{ID: "u-1", Email: "user@example.com", Nickname: "tester"},
		},
		channel:   &fakeChannel{},
		seeder:    &fakeSeeder{},
		refresher: &fakeRefresher{resp: &pkgapi.TokenResponse{AccessToken: "A2", RefreshToken: "R2"}},
	}
	coordinator := NewCoordinator(f.store, f.refresher)
	f.svc = NewService(f.gateway, f.store, coordinator,
		WithChannel(f.channel),
		WithSeeder(f.seeder),
		WithRetryDelay(10*time.Millisecond),
	)
	return f
}

func TestService_Login(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		loginErr   error
		profileErr error
		wantErr    error
		wantStored bool
	}{
		{
			name:       "success",
			email:      "user@example.com",
			password:   "password123",
			wantStored: true,
		},
		{
			name:     "invalid email",
			email:    "not-an-email",
			password: "password123",
		},
		{
			name:  "empty password",
			email: "user@example.com",
		},
		{
			name:     "bad credentials",
			email:    "user@example.com",
			password: "wrong-password",
			loginErr: &api.Error{StatusCode: http.StatusUnauthorized, Code: pkgapi.CodeBadCredentials},
			wantErr:  ErrAuthenticationFailed,
		},
		{
			name:       "profile fails after login",
			email:      "user@example.com",
			password:   "password123",
			profileErr: &api.Error{StatusCode: http.StatusInternalServerError},
			wantErr:    ErrAuthenticationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.gateway.loginErr = tt.loginErr
			f.gateway.profileErr = tt.profileErr

			profile, err := f.svc.Login(context.Background(), tt.email, tt.password)

			if !tt.wantStored {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				assert.Nil(t, profile)
				assert.Nil(t, f.store.Get(), "no credential left behind")
				assert.Nil(t, f.svc.Profile())
				assert.Zero(t, f.channel.starts(), "channel not started")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "u-1", profile.ID)
			assert.Equal(t, &models.Credential{AccessToken: "A1", RefreshToken: "R1"}, f.store.Get())
			assert.Equal(t, 1, f.seeder.seeds)
			require.Equal(t, 1, f.channel.starts())
			assert.Equal(t, "A1", f.channel.started[0].AccessToken)
			assert.Equal(t, "u-1", f.channel.userIDs[0])
		})
	}
}

func TestService_Signup_Validation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Signup(context.Background(), pkgapi.SignupRequest{
		Email:    "user@example.com",
		Password: "short",
		Nickname: "tester",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")

	_, err = f.svc.Signup(context.Background(), pkgapi.SignupRequest{
		Email:    "user@example.com",
		Password: "password123",
		Nickname: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nickname")

	profile, err := f.svc.Signup(context.Background(), pkgapi.SignupRequest{
		Email:    "user@example.com",
		Password: "password123",
		Nickname: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, "tester", profile.Nickname)
}

func TestService_Logout(t *testing.T) {
	tests := []struct {
		logoutErr error
		name      string
	}{
		{name: "server accepts"},
		{name: "server unreachable", logoutErr: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			ctx := context.Background()
			_, err := f.svc.Login(ctx, "user@example.com", "password123")
			require.NoError(t, err)

			f.gateway.logoutErr = tt.logoutErr

			// Выход локально успешен, даже если сервер не ответил
			require.NoError(t, f.svc.Logout(ctx))

			assert.Equal(t, []string{"R1"}, f.gateway.logouts)
			assert.Nil(t, f.store.Get())
			assert.Nil(t, f.svc.Profile())
			assert.Equal(t, 1, f.seeder.resets)
			assert.GreaterOrEqual(t, f.channel.stops, 2)
		})
	}
}

func TestService_ForcedLogoutSignal(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.Login(ctx, "user@example.com", "password123")
	require.NoError(t, err)

	f.refresher.err = &api.Error{StatusCode: http.StatusUnauthorized, Code: pkgapi.CodeInvalidToken}

	_, err = f.svc.coordinator.EnsureValid(ctx, "A1")
	require.ErrorIs(t, err, ErrRefreshRejected)

	select {
	case cause := <-f.svc.Invalidated():
		assert.ErrorIs(t, cause, ErrRefreshRejected)
	case <-time.After(time.Second):
		t.Fatal("forced logout was not signalled")
	}

	assert.Nil(t, f.store.Get())
	assert.Nil(t, f.svc.Profile())
}

func TestService_FailedEstablishDoesNotSignalNextSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Как api.Client: 401 на /users/me запускает refresh, сервер его отклоняет
	f.refresher.err = &api.Error{StatusCode: http.StatusUnauthorized, Code: pkgapi.CodeInvalidToken}
	f.gateway.profileErr = &api.Error{StatusCode: http.StatusUnauthorized}
	f.gateway.onProfile = func(ctx context.Context) {
		_, err := f.svc.coordinator.EnsureValid(ctx, f.store.AccessToken())
		assert.ErrorIs(t, err, ErrRefreshRejected)
	}

	_, err := f.svc.Establish(ctx, models.Credential{AccessToken: "BAD", RefreshToken: "RBAD"})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Nil(t, f.store.Get())

	f.refresher.err = nil
	f.gateway.profileErr = nil
	f.gateway.onProfile = nil

	profile, err := f.svc.Establish(ctx, models.Credential{AccessToken: "A1", RefreshToken: "R1"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", profile.ID)

	select {
	case cause := <-f.svc.Invalidated():
		t.Fatalf("live session reported as invalidated: %v", cause)
	case <-time.After(50 * time.Millisecond):
	}
	assert.NotNil(t, f.svc.Profile())
	assert.NotNil(t, f.store.Get())
}

func TestService_RestoreSession(t *testing.T) {
	t.Run("no stored credential", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.RestoreSession(context.Background())
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("stored credential", func(t *testing.T) {
		f := newServiceFixture(t)
		ctx := context.Background()
		require.NoError(t, f.store.Set(ctx, models.Credential{AccessToken: "A1", RefreshToken: "R1"}))

		profile, err := f.svc.RestoreSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "u-1", profile.ID)
		assert.Equal(t, 1, f.channel.starts())
	})

	t.Run("session ended on server", func(t *testing.T) {
		f := newServiceFixture(t)
		ctx := context.Background()
		require.NoError(t, f.store.Set(ctx, models.Credential{AccessToken: "A1", RefreshToken: "R1"}))
		f.gateway.profileErr = &api.Error{StatusCode: http.StatusUnauthorized}

		_, err := f.svc.RestoreSession(ctx)
		assert.ErrorIs(t, err, ErrNoSession)
		assert.Nil(t, f.store.Get())
	})

	t.Run("server unreachable keeps credential", func(t *testing.T) {
		f := newServiceFixture(t)
		ctx := context.Background()
		require.NoError(t, f.store.Set(ctx, models.Credential{AccessToken: "A1", RefreshToken: "R1"}))
		f.gateway.profileErr = errors.New("connection refused")

		_, err := f.svc.RestoreSession(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoSession)
		assert.NotNil(t, f.store.Get())
	})
}

func TestService_ReconnectChannel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.Login(ctx, "user@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, 1, f.channel.starts())

	f.svc.ReconnectChannel("A1")

	require.Eventually(t, func() bool { return f.channel.starts() == 2 }, time.Second, time.Millisecond)

	f.channel.mu.Lock()
	defer f.channel.mu.Unlock()
	assert.Equal(t, "A2", f.channel.started[1].AccessToken, "channel restarted with refreshed token")
}
