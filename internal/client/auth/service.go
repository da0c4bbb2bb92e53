package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/jiucom/internal/client/api"
	"github.com/iudanet/jiucom/internal/models"
	"github.com/iudanet/jiucom/internal/validation"
	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

//go:generate moq -out gateway_mock.go . Gateway

// Gateway - HTTP операции, нужные сессии. Реализуется *api.Client
// с подключенным Coordinator.
type Gateway interface {
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
	Signup(ctx context.Context, req pkgapi.SignupRequest) (*pkgapi.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context) (*pkgapi.UserProfile, error)
}

// Channel - live канал уведомлений (notify.Channel)
type Channel interface {
	Start(ctx context.Context, cred models.Credential, userID string) error
	Stop()
}

// Seeder наполняет локальное хранилище уведомлений при входе
// и сбрасывает его при выходе (notify.Syncer)
type Seeder interface {
	Seed(ctx context.Context) error
	Reset()
}

// Service управляет жизненным циклом сессии: вход, восстановление,
// выход и принудительный выход после отказа в refresh.
type Service struct {
	gateway     Gateway
	store       *TokenStore
	coordinator *Coordinator
	channel     Channel
	seeder      Seeder
	logger      *slog.Logger
	profile     *pkgapi.UserProfile
	invalidated chan error
	timeout     time.Duration
	retryDelay  time.Duration
	mu          sync.Mutex
}

// ServiceOption настраивает Service
type ServiceOption func(*Service)

// WithChannel подключает live канал уведомлений
func WithChannel(ch Channel) ServiceOption {
	return func(s *Service) {
		s.channel = ch
	}
}

// WithSeeder подключает начальную загрузку уведомлений
func WithSeeder(seeder Seeder) ServiceOption {
	return func(s *Service) {
		s.seeder = seeder
	}
}

// WithServiceLogger задает логгер
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetryDelay задает паузу между попытками обновить токен для канала
func WithRetryDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.retryDelay = d
	}
}

// NewService создает сервис сессии и подписывается на принудительный выход
func NewService(gateway Gateway, store *TokenStore, coordinator *Coordinator, opts ...ServiceOption) *Service {
	s := &Service{
		gateway:     gateway,
		store:       store,
		coordinator: coordinator,
		logger:      slog.New(slog.DiscardHandler),
		invalidated: make(chan error, 1),
		timeout:     15 * time.Second,
		retryDelay:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	coordinator.OnForcedLogout(s.forceLogout)

	return s
}

// Invalidated сигнализирует UI, что сессия завершена без участия пользователя
func (s *Service) Invalidated() <-chan error {
	return s.invalidated
}

// Profile возвращает профиль активной сессии или nil
func (s *Service) Profile() *pkgapi.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// Credential возвращает текущую пару токенов
func (s *Service) Credential() *models.Credential {
	return s.store.Get()
}

// Login выполняет вход по email и паролю
func (s *Service) Login(ctx context.Context, email, password string) (*pkgapi.UserProfile, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	resp, err := s.gateway.Login(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		if api.IsUnauthorized(err) {
			return nil, fmt.Errorf("%w: invalid email or password", ErrAuthenticationFailed)
		}
		return nil, err
	}

	return s.Establish(ctx, models.Credential{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
}

// Signup регистрирует пользователя и сразу открывает сессию
func (s *Service) Signup(ctx context.Context, req pkgapi.SignupRequest) (*pkgapi.UserProfile, error) {
	if err := validation.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if err := validation.ValidateNickname(req.Nickname); err != nil {
		return nil, fmt.Errorf("invalid nickname: %w", err)
	}

	resp, err := s.gateway.Signup(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.Establish(ctx, models.Credential{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
}

// Establish принимает готовую пару токенов: сохраняет ее, загружает профиль
// и запускает канал уведомлений. Если профиль не загрузился, credential
// удаляется и канал не запускается.
func (s *Service) Establish(ctx context.Context, cred models.Credential) (*pkgapi.UserProfile, error) {
	if cred.IsZero() {
		return nil, fmt.Errorf("%w: empty access token", ErrAuthenticationFailed)
	}

	// Предыдущая сессия (если была) больше не получает события
	s.stopChannel()

	if err := s.store.Set(ctx, cred); err != nil {
		s.logger.WarnContext(ctx, "credential kept in memory only", slog.Any("error", err))
	}

	profile, err := s.gateway.Profile(ctx)
	if err != nil {
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back credential", slog.Any("error", clearErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	s.activate(ctx, profile)

	return profile, nil
}

// RestoreSession поднимает сессию из сохраненного credential.
// Устаревший access token обновится прозрачно при загрузке профиля.
func (s *Service) RestoreSession(ctx context.Context) (*pkgapi.UserProfile, error) {
	if err := s.store.Load(ctx); err != nil {
		return nil, err
	}
	if s.store.Get() == nil {
		return nil, ErrNoSession
	}

	profile, err := s.gateway.Profile(ctx)
	if err != nil {
		if api.IsUnauthorized(err) || IsSessionEnded(err) {
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				s.logger.ErrorContext(ctx, "failed to clear credential", slog.Any("error", clearErr))
			}
			return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		// Сервер недоступен: credential сохраняем для следующей попытки
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	s.activate(ctx, profile)

	return profile, nil
}

func (s *Service) activate(ctx context.Context, profile *pkgapi.UserProfile) {
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()

	if s.seeder != nil {
		if err := s.seeder.Seed(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to load notifications", slog.Any("error", err))
		}
	}

	s.startChannel(ctx, profile.ID)
}

func (s *Service) startChannel(ctx context.Context, userID string) {
	if s.channel == nil {
		return
	}
	cred := s.store.Get()
	if cred == nil {
		return
	}
	if err := s.channel.Start(ctx, *cred, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to start notification channel", slog.Any("error", err))
	}
}

func (s *Service) stopChannel() {
	if s.channel != nil {
		s.channel.Stop()
	}
}

// Logout завершает сессию. Запрос на сервер best-effort: локальные данные
// удаляются, даже если сервер недоступен.
func (s *Service) Logout(ctx context.Context) error {
	s.stopChannel()

	if cred := s.store.Get(); cred != nil {
		if err := s.gateway.Logout(ctx, cred.RefreshToken); err != nil {
			s.logger.WarnContext(ctx, "failed to logout on server", slog.Any("error", err))
		}
	}

	s.deactivate()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to delete local session: %w", err)
	}

	return nil
}

func (s *Service) deactivate() {
	s.mu.Lock()
	s.profile = nil
	s.mu.Unlock()

	if s.seeder != nil {
		s.seeder.Reset()
	}
}

// forceLogout вызывается координатором после окончательного отказа в refresh
func (s *Service) forceLogout(cause error) {
	s.mu.Lock()
	active := s.profile != nil
	s.mu.Unlock()

	s.stopChannel()
	s.deactivate()

	// Сессия еще не поднята (Establish, RestoreSession): ошибку вернет сам вызов
	if !active {
		return
	}

	select {
	case s.invalidated <- cause:
	default:
		// сигнал уже ждет получателя
	}
}

// ReconnectChannel обрабатывает отказ канала в авторизации: обновляет
// токен через координатор и перезапускает канал с новым credential.
// staleToken - access token, с которым канал подключался.
// Временные сбои refresh повторяются с паузой retryDelay, пока сессия активна.
func (s *Service) ReconnectChannel(staleToken string) {
	go func() {
		for {
			err := s.refreshForChannel(staleToken)
			if err == nil {
				break
			}
			// При отказе в refresh forceLogout уже отработал
			if IsSessionEnded(err) {
				return
			}
			s.logger.Warn("failed to refresh token for notification channel", slog.Any("error", err))

			time.Sleep(s.retryDelay)
			if s.Profile() == nil {
				return
			}
		}

		profile := s.Profile()
		if profile == nil {
			return
		}
		s.startChannel(context.Background(), profile.ID)
	}()
}

func (s *Service) refreshForChannel(staleToken string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.coordinator.EnsureValid(ctx, staleToken)
	return err
}
