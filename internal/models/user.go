package models

import "time"

// Роли пользователей
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User представляет пользователя в системе
type User struct {
	CreatedAt       time.Time  `json:"created_at"`           // время создания
	LastLogin       *time.Time `json:"last_login,omitempty"` // время последнего входа
	ID              string     `json:"id"`                   // UUID пользователя
	Email           string     `json:"email"`                // уникальный email
	Nickname        string     `json:"nickname"`             // уникальный nickname
	PasswordHash    string     `json:"-"`                    // bcrypt хеш пароля
	ProfileImageURL string     `json:"profile_image_url,omitempty"`
	Role            string     `json:"role"`
}

// RefreshToken представляет refresh token пользователя
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	Token     string    `json:"token"`      // opaque значение токена
	UserID    string    `json:"user_id"`    // ID пользователя
}
