package api

import "time"

// SignupRequest представляет запрос на регистрацию нового пользователя
type SignupRequest struct {
	Email    string `json:"email"`    // email пользователя (логин)
	Password string `json:"password"` // пароль в открытом виде, сервер хранит только bcrypt хеш
	Nickname string `json:"nickname"` // отображаемое имя
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest представляет запрос на обновление пары токенов
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest представляет запрос на выход (отзыв refresh token)
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TokenResponse представляет ответ с токенами доступа.
// RefreshToken может отсутствовать в ответе на refresh, тогда клиент
// продолжает использовать прежний.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`            // JWT access token
	RefreshToken string `json:"refreshToken,omitempty"` // opaque refresh token
	TokenType    string `json:"tokenType,omitempty"`    // всегда "Bearer"
	ExpiresIn    int64  `json:"expiresIn,omitempty"`    // время жизни access token в секундах
}

// UserProfile представляет профиль текущего пользователя (GET /users/me)
type UserProfile struct {
	CreatedAt       time.Time `json:"createdAt"`
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Nickname        string    `json:"nickname"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Role            string    `json:"role"`
}
