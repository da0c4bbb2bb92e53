package auth

import (
	"context"
	"sync"

	"github.com/iudanet/jiucom/internal/client/storage"
)

// memAuthStorage implements storage.AuthStorage in memory for testing
type memAuthStorage struct {
	data    *storage.AuthData
	saveErr error
	saves   int
	mu      sync.Mutex
}

func (m *memAuthStorage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *auth
	m.data = &cp
	m.saves++
	return nil
}

func (m *memAuthStorage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, storage.ErrAuthNotFound
	}
	cp := *m.data
	return &cp, nil
}

func (m *memAuthStorage) DeleteAuth(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return storage.ErrAuthNotFound
	}
	m.data = nil
	return nil
}

func (m *memAuthStorage) stored() *storage.AuthData {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	cp := *m.data
	return &cp
}

// memMetadata implements storage.MetadataStorage in memory
type memMetadata struct {
	salt []byte
}

func (m *memMetadata) SaveTokenSalt(ctx context.Context, salt []byte) error {
	m.salt = salt
	return nil
}

func (m *memMetadata) GetTokenSalt(ctx context.Context) ([]byte, error) {
	return m.salt, nil
}
