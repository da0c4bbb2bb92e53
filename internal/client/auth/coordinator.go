package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/jiucom/internal/client/api"
	"github.com/iudanet/jiucom/internal/models"
	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// RefreshState - состояние координатора
type RefreshState int

const (
	// StateIdle - обновление не выполняется
	StateIdle RefreshState = iota
	// StateRefreshing - запрос /auth/refresh в полете
	StateRefreshing
)

func (s RefreshState) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

//go:generate moq -out refresher_mock.go . Refresher

// Refresher exchanges a refresh token for a new pair.
// It must not itself retry on 401; *api.Client without a TokenSource fits.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error)
}

type refreshResult struct {
	err   error
	token string
}

// Coordinator guarantees at most one in-flight token refresh. Callers that
// hit a 401 while a refresh is running are queued and released together,
// in arrival order, with the outcome of that single refresh.
type Coordinator struct {
	store          CredentialStore
	refresher      Refresher
	logger         *slog.Logger
	onForcedLogout func(error)
	waiters        []chan refreshResult
	timeout        time.Duration
	state          RefreshState
	mu             sync.Mutex
}

// CoordinatorOption настраивает Coordinator
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout ограничивает время одного запроса на обновление
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithCoordinatorLogger задает логгер
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator создает координатор обновления токенов
func NewCoordinator(store CredentialStore, refresher Refresher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		logger:    slog.New(slog.DiscardHandler),
		timeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time check
var _ api.TokenSource = (*Coordinator)(nil)

// OnForcedLogout регистрирует обработчик окончательного отказа в refresh.
// Вызывается после очистки credential, но до освобождения ожидающих.
func (c *Coordinator) OnForcedLogout(fn func(error)) {
	c.mu.Lock()
	c.onForcedLogout = fn
	c.mu.Unlock()
}

// State возвращает текущее состояние
func (c *Coordinator) State() RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AccessToken возвращает текущий access token
func (c *Coordinator) AccessToken() string {
	if cred := c.store.Get(); cred != nil {
		return cred.AccessToken
	}
	return ""
}

// EnsureValid returns an access token newer than stale. If another refresh
// already replaced stale, the current token is returned without a network
// call. Otherwise the caller joins (or starts) the single in-flight refresh.
// Cancelling ctx only stops this caller from waiting; the refresh itself
// keeps running for everyone else.
func (c *Coordinator) EnsureValid(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()

	ch := make(chan refreshResult, 1)

	if c.state == StateRefreshing {
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		return c.wait(ctx, ch)
	}

	cred := c.store.Get()
	if cred == nil {
		c.mu.Unlock()
		return "", ErrNoSession
	}
	if cred.AccessToken != stale {
		// Кто-то уже обновил токен после отправки запроса
		c.mu.Unlock()
		return cred.AccessToken, nil
	}

	c.state = StateRefreshing
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	go c.refresh(context.WithoutCancel(ctx), *cred)

	return c.wait(ctx, ch)
}

func (c *Coordinator) wait(ctx context.Context, ch <-chan refreshResult) (string, error) {
	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh выполняет единственный запрос на обновление и раздает результат
func (c *Coordinator) refresh(ctx context.Context, cred models.Credential) {
	if cred.RefreshToken == "" {
		c.reject(ctx, fmt.Errorf("%w: no refresh token stored", ErrRefreshRejected))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.DebugContext(ctx, "refreshing access token")

	resp, err := c.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if api.IsClientError(err) {
			c.reject(ctx, fmt.Errorf("%w: %v", ErrRefreshRejected, err))
			return
		}
		// Сеть или 5xx: credential оставляем, ожидающие получают ошибку
		c.logger.WarnContext(ctx, "token refresh failed", slog.Any("error", err))
		c.settle("", fmt.Errorf("%w: %v", ErrRefreshFailed, err))
		return
	}

	next := models.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	// Сервер может не ротировать refresh token
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	swapped, err := c.store.CompareAndSet(ctx, cred.AccessToken, next)
	if err != nil {
		// Новый токен уже в памяти, сессия продолжится до перезапуска
		c.logger.WarnContext(ctx, "failed to persist refreshed credential", slog.Any("error", err))
	}
	if !swapped && err == nil {
		// Пока шел refresh, credential сменился (logout или новый login)
		current := c.store.Get()
		if current == nil {
			c.settle("", ErrNoSession)
			return
		}
		c.settle(current.AccessToken, nil)
		return
	}

	c.logger.DebugContext(ctx, "access token refreshed")
	c.settle(next.AccessToken, nil)
}

// reject завершает сессию: очищает credential, отклоняет всех ожидающих
// и сообщает о принудительном выходе
func (c *Coordinator) reject(ctx context.Context, cause error) {
	c.logger.WarnContext(ctx, "refresh rejected, clearing session", slog.Any("error", cause))

	if err := c.store.Clear(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear credential", slog.Any("error", err))
	}

	c.mu.Lock()
	fn := c.onForcedLogout
	c.mu.Unlock()

	// Обработчик отрабатывает до возврата ожидающих: к моменту, когда вызов
	// получил ErrRefreshRejected, сессия уже свернута
	if fn != nil {
		fn(cause)
	}

	c.settle("", cause)
}

// settle возвращает координатор в Idle и освобождает очередь по порядку
func (c *Coordinator) settle(token string, err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = StateIdle
	c.mu.Unlock()

	// Каналы буферизованы, ушедший по ctx ожидающий не блокирует раздачу
	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
}

// IsSessionEnded сообщает, что ошибка означает конец сессии
func IsSessionEnded(err error) bool {
	return errors.Is(err, ErrRefreshRejected) || errors.Is(err, ErrNoSession)
}
