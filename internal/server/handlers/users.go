package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/jiucom/internal/server/storage"
	"github.com/iudanet/jiucom/pkg/api"
)

// UserHandler отдает данные текущего пользователя
type UserHandler struct {
	logger      *slog.Logger
	userStorage storage.UserStorage
}

// NewUserHandler создает новый handler профиля
func NewUserHandler(logger *slog.Logger, userStorage storage.UserStorage) *UserHandler {
	return &UserHandler{
		logger:      logger,
		userStorage: userStorage,
	}
}

// Me обрабатывает GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// user_id установлен AuthMiddleware
	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user ID not found in context")
		SendError(w, h.logger, api.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.userStorage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Токен валиден, но пользователя уже нет
			SendError(w, h.logger, api.CodeNotFound, "user not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.UserProfile{
		CreatedAt:       user.CreatedAt,
		ID:              user.ID,
		Email:           user.Email,
		Nickname:        user.Nickname,
		ProfileImageURL: user.ProfileImageURL,
		Role:            user.Role,
	}

	sendData(w, h.logger, resp, "", http.StatusOK)
}
