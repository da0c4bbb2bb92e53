package boltdb

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	keyTokenSalt = "token_salt"
)

// SaveTokenSalt saves the salt for the token sealing key
func (s *Storage) SaveTokenSalt(ctx context.Context, salt []byte) error {
	if len(salt) == 0 {
		return fmt.Errorf("salt cannot be empty")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if err := bucket.Put([]byte(keyTokenSalt), salt); err != nil {
			return fmt.Errorf("failed to save token salt: %w", err)
		}

		return nil
	})
}

// GetTokenSalt retrieves the salt for the token sealing key
// Returns nil if no salt has been saved yet
func (s *Storage) GetTokenSalt(ctx context.Context) ([]byte, error) {
	var salt []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if v := bucket.Get([]byte(keyTokenSalt)); v != nil {
			// Копируем: память bbolt недоступна после закрытия транзакции
			salt = bytes.Clone(v)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get token salt: %w", err)
	}

	return salt, nil
}
