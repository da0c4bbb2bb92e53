package storage

import (
	"context"
)

//go:generate moq -out auth_mock.go . AuthStorage

// AuthStorage defines interface for storing the client credential.
// This is the lowest storage layer - it persists whatever it is given
// (plaintext or sealed tokens) and performs no encryption itself.
type AuthStorage interface {
	// SaveAuth stores authentication data, replacing the previous record
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data as-is
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data
	// Returns ErrAuthNotFound if there was nothing to delete
	DeleteAuth(ctx context.Context) error
}

// AuthData represents the persisted credential.
// When Sealed is true both tokens hold base64 AES-GCM ciphertext
// produced by the auth.TokenStore sealing layer.
type AuthData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UpdatedAt    int64  `json:"updated_at"` // unix seconds
	Sealed       bool   `json:"sealed"`
}
