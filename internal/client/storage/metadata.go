package storage

import "context"

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveTokenSalt saves the Argon2 salt used to derive the token sealing key
	SaveTokenSalt(ctx context.Context, salt []byte) error

	// GetTokenSalt retrieves the sealing salt
	// Returns nil without error if no salt has been generated yet
	GetTokenSalt(ctx context.Context) ([]byte, error)
}
