package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/jiucom/internal/client/storage"
	"github.com/iudanet/jiucom/internal/crypto"
	"github.com/iudanet/jiucom/internal/models"
)

//go:generate moq -out credential_store_mock.go . CredentialStore

// CredentialStore is the view of the token store the refresh logic needs.
type CredentialStore interface {
	// Get returns a copy of the current credential or nil
	Get() *models.Credential

	// CompareAndSet replaces the credential only if its access token is
	// still expected. It reports whether the swap happened.
	CompareAndSet(ctx context.Context, expected string, next models.Credential) (bool, error)

	// Clear removes the credential from memory and disk
	Clear(ctx context.Context) error
}

// TokenStore holds the active credential in memory and mirrors it into
// AuthStorage. With a Sealer configured tokens are encrypted at rest.
// Concurrent Set calls are last-write-wins; a reader never sees a
// half-updated pair.
type TokenStore struct {
	storage storage.AuthStorage
	sealer  *crypto.Sealer
	logger  *slog.Logger
	cred    *models.Credential
	mu      sync.RWMutex
}

// Compile-time check
var _ CredentialStore = (*TokenStore)(nil)

// StoreOption настраивает TokenStore
type StoreOption func(*TokenStore)

// WithSealer включает шифрование токенов на диске
func WithSealer(s *crypto.Sealer) StoreOption {
	return func(ts *TokenStore) {
		ts.sealer = s
	}
}

// WithStoreLogger задает логгер
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(ts *TokenStore) {
		ts.logger = logger
	}
}

// NewTokenStore создает хранилище токенов поверх AuthStorage
func NewTokenStore(st storage.AuthStorage, opts ...StoreOption) *TokenStore {
	ts := &TokenStore{
		storage: st,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// NewSealer выводит ключ шифрования токенов из passphrase.
// Соль создается при первом запуске и хранится в metadata bucket.
func NewSealer(ctx context.Context, meta storage.MetadataStorage, passphrase string) (*crypto.Sealer, error) {
	salt, err := meta.GetTokenSalt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load token salt: %w", err)
	}

	if salt == nil {
		salt, err = crypto.GenerateSalt()
		if err != nil {
			return nil, err
		}
		if err := meta.SaveTokenSalt(ctx, salt); err != nil {
			return nil, fmt.Errorf("failed to save token salt: %w", err)
		}
	}

	key, err := crypto.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}

	return crypto.NewSealer(key)
}

// Load читает сохраненный credential в память.
// Отсутствие данных не ошибка: Get вернет nil.
func (s *TokenStore) Load(ctx context.Context) error {
	data, err := s.storage.GetAuth(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		s.mu.Lock()
		s.cred = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}

	cred, err := s.decode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	return nil
}

// Get возвращает копию текущего credential или nil
func (s *TokenStore) Get() *models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil
	}
	c := *s.cred
	return &c
}

// AccessToken возвращает текущий access token или пустую строку
func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return ""
	}
	return s.cred.AccessToken
}

// Set атомарно заменяет credential. Память обновляется даже если запись
// на диск не удалась: текущая сессия продолжает работать, ошибка возвращается.
func (s *TokenStore) Set(ctx context.Context, cred models.Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setLocked(ctx, cred)
}

// CompareAndSet заменяет credential, только если access token не менялся
func (s *TokenStore) CompareAndSet(ctx context.Context, expected string, next models.Credential) (bool, error) {
	if next.AccessToken == "" {
		return false, fmt.Errorf("access token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil || s.cred.AccessToken != expected {
		return false, nil
	}

	return true, s.setLocked(ctx, next)
}

func (s *TokenStore) setLocked(ctx context.Context, cred models.Credential) error {
	s.cred = &cred

	data, err := s.encode(cred)
	if err != nil {
		return err
	}
	if err := s.storage.SaveAuth(ctx, data); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

// Clear удаляет credential из памяти и с диска
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil

	if err := s.storage.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *TokenStore) encode(cred models.Credential) (*storage.AuthData, error) {
	data := &storage.AuthData{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		UpdatedAt:    time.Now().Unix(),
	}
	if s.sealer == nil {
		return data, nil
	}

	var err error
	if data.AccessToken, err = s.sealer.Seal(cred.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to seal access token: %w", err)
	}
	if data.RefreshToken, err = s.sealer.Seal(cred.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to seal refresh token: %w", err)
	}
	data.Sealed = true

	return data, nil
}

func (s *TokenStore) decode(data *storage.AuthData) (*models.Credential, error) {
	if !data.Sealed {
		if s.sealer != nil {
			s.logger.Warn("stored credential is not sealed, it will be sealed on next update")
		}
		return &models.Credential{AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}, nil
	}
	if s.sealer == nil {
		return nil, ErrStoreLocked
	}

	access, err := s.sealer.Open(data.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	refresh, err := s.sealer.Open(data.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}

	return &models.Credential{AccessToken: access, RefreshToken: refresh}, nil
}
