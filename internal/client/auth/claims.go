package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo - то, что клиент может прочитать из access token без ключа
type TokenInfo struct {
	ExpiresAt time.Time
	IssuedAt  time.Time
	UserID    string
	Email     string
	Role      string
}

// accessClaims повторяет claims, которые выдает сервер
type accessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// InspectAccessToken разбирает JWT без проверки подписи.
// Только для отображения: клиент не доверяет этим данным при авторизации.
func InspectAccessToken(token string) (*TokenInfo, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	info := &TokenInfo{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}
	if info.UserID == "" {
		info.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}

	return info, nil
}

// Expired сообщает, истек ли токен к моменту now
func (i *TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
