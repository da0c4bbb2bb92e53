package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/jiucom/internal/crypto"
	"github.com/iudanet/jiucom/internal/models"
	"github.com/iudanet/jiucom/internal/server/storage"
	"github.com/iudanet/jiucom/internal/validation"
	"github.com/iudanet/jiucom/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger       *slog.Logger
	userStorage  storage.UserStorage
	tokenStorage storage.TokenStorage
	jwtConfig    JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, tokenStorage storage.TokenStorage, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		userStorage:  userStorage,
		tokenStorage: tokenStorage,
		jwtConfig:    jwtConfig,
	}
}

// Signup обрабатывает POST /auth/signup
// Регистрация нового пользователя, в ответ сразу выдается пара токенов
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode signup request", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInvalidInput, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Nickname = strings.TrimSpace(req.Nickname)

	if err := errors.Join(
		validation.ValidateEmail(req.Email),
		validation.ValidateNickname(req.Nickname),
		validation.ValidatePassword(req.Password),
	); err != nil {
		h.logger.WarnContext(ctx, "invalid signup request", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInvalidInput, strings.ReplaceAll(err.Error(), "\n", "; "), http.StatusBadRequest)
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Nickname:     req.Nickname,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists", slog.String("nickname", req.Nickname))
			SendError(w, h.logger, api.CodeConflict, "email or nickname already taken", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	resp, err := h.issueTokens(ctx, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully", slog.String("user_id", user.ID))

	sendData(w, h.logger, resp, "signup succeeded", http.StatusCreated)
}

// Login обрабатывает POST /auth/login
// Аутентификация пользователя по email и паролю
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInvalidInput, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		SendError(w, h.logger, api.CodeInvalidInput, "email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found")
			SendError(w, h.logger, api.CodeBadCredentials, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("user_id", user.ID))
		SendError(w, h.logger, api.CodeBadCredentials, "invalid credentials", http.StatusUnauthorized)
		return
	}

	resp, err := h.issueTokens(ctx, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	// Обновляем last_login
	if err := h.userStorage.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged in successfully", slog.String("user_id", user.ID))

	sendData(w, h.logger, resp, "login succeeded", http.StatusOK)
}

// Refresh обрабатывает POST /auth/refresh
// Обменивает refresh token на новую пару. Старый refresh token сгорает.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode refresh request", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInvalidInput, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		SendError(w, h.logger, api.CodeInvalidToken, "refresh token is required", http.StatusUnauthorized)
		return
	}

	storedToken, err := h.tokenStorage.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "refresh token not found")
			SendError(w, h.logger, api.CodeInvalidToken, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get refresh token", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	// Проверяем срок действия
	if time.Now().After(storedToken.ExpiresAt) {
		h.logger.WarnContext(ctx, "refresh token expired", slog.String("user_id", storedToken.UserID))
		if err := h.tokenStorage.DeleteRefreshToken(ctx, req.RefreshToken); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "failed to delete expired refresh token", slog.Any("error", err))
		}
		SendError(w, h.logger, api.CodeExpiredToken, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.userStorage.GetUserByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			SendError(w, h.logger, api.CodeInvalidToken, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	newRefreshToken, newExpiresAt, err := GenerateRefreshToken(h.jwtConfig)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate refresh token", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	next := &models.RefreshToken{
		Token:     newRefreshToken,
		UserID:    user.ID,
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now(),
	}

	// Параллельный refresh тем же токеном проигрывает здесь
	if err := h.tokenStorage.RotateRefreshToken(ctx, req.RefreshToken, next); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "refresh token already used", slog.String("user_id", user.ID))
			SendError(w, h.logger, api.CodeInvalidToken, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to rotate refresh token", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "tokens refreshed successfully", slog.String("user_id", user.ID))

	resp := api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}

	sendData(w, h.logger, resp, "token refreshed", http.StatusOK)
}

// Logout обрабатывает POST /auth/logout
// Отзывает переданный refresh token. Неизвестный токен не ошибка: выход идемпотентен.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LogoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode logout request", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInvalidInput, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		SendError(w, h.logger, api.CodeInvalidInput, "refresh token is required", http.StatusBadRequest)
		return
	}

	if err := h.tokenStorage.DeleteRefreshToken(ctx, req.RefreshToken); err != nil {
		if !errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.ErrorContext(ctx, "failed to delete refresh token", slog.Any("error", err))
			SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
			return
		}
		h.logger.DebugContext(ctx, "logout with unknown refresh token")
	} else {
		h.logger.InfoContext(ctx, "user logged out successfully")
	}

	w.WriteHeader(http.StatusNoContent)
}

// issueTokens создает и сохраняет новую пару токенов
func (h *AuthHandler) issueTokens(ctx context.Context, user *models.User) (*api.TokenResponse, error) {
	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, user)
	if err != nil {
		return nil, err
	}

	refreshToken, expiresAt, err := GenerateRefreshToken(h.jwtConfig)
	if err != nil {
		return nil, err
	}

	token := &models.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := h.tokenStorage.SaveRefreshToken(ctx, token); err != nil {
		return nil, err
	}

	return &api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}
