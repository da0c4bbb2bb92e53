package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/jiucom/internal/models"
	"github.com/iudanet/jiucom/internal/server/storage"
	"github.com/iudanet/jiucom/pkg/api"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

//go:generate moq -out publisher_mock.go . Publisher

// Publisher доставляет новое уведомление подписчикам пользователя.
// Возвращает число сессий, получивших сообщение.
type Publisher interface {
	Publish(userID string, n api.Notification) int
}

// NotificationHandler обрабатывает REST запросы уведомлений
type NotificationHandler struct {
	logger    *slog.Logger
	storage   storage.NotificationStorage
	publisher Publisher
}

// NewNotificationHandler создает handler уведомлений.
// publisher может быть nil, тогда новые уведомления только сохраняются.
func NewNotificationHandler(logger *slog.Logger, s storage.NotificationStorage, publisher Publisher) *NotificationHandler {
	return &NotificationHandler{
		logger:    logger,
		storage:   s,
		publisher: publisher,
	}
}

// List обрабатывает GET /notifications?page=&size=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	page, size, err := parsePaging(r)
	if err != nil {
		SendError(w, h.logger, api.CodeInvalidInput, err.Error(), http.StatusBadRequest)
		return
	}

	list, total, err := h.storage.ListNotifications(ctx, userID, page*size, size)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list notifications", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	content := make([]api.Notification, 0, len(list))
	for _, n := range list {
		content = append(content, toAPINotification(n))
	}

	sendData(w, h.logger, api.NewPage(content, page, size, total), "", http.StatusOK)
}

// UnreadCount обрабатывает GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.storage.CountUnread(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count unread notifications", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	sendData(w, h.logger, api.UnreadCountResponse{UnreadCount: count}, "", http.StatusOK)
}

// MarkRead обрабатывает PATCH /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		SendError(w, h.logger, api.CodeInvalidInput, "invalid notification id", http.StatusBadRequest)
		return
	}

	if err := h.storage.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotificationNotFound) {
			SendError(w, h.logger, api.CodeNotFound, "notification not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to mark notification read", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead обрабатывает PATCH /notifications/read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	updated, err := h.storage.MarkAllRead(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to mark notifications read", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "notifications marked read",
		slog.String("user_id", userID),
		slog.Int64("updated", updated))

	sendData(w, h.logger, api.MarkAllReadResponse{Updated: updated}, "", http.StatusOK)
}

// Create обрабатывает POST /notifications.
// Создает уведомление для текущего пользователя и публикует его в STOMP.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req api.CreateNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode notification request", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInvalidInput, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if req.Type == "" {
		req.Type = models.NotificationSystem
	}
	if strings.TrimSpace(req.Message) == "" {
		SendError(w, h.logger, api.CodeInvalidInput, "message is required", http.StatusBadRequest)
		return
	}

	n := &models.Notification{
		CreatedAt:   time.Now().UTC(),
		UserID:      userID,
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		LinkURL:     req.LinkURL,
		ReferenceID: req.ReferenceID,
	}

	if err := h.storage.CreateNotification(ctx, n); err != nil {
		h.logger.ErrorContext(ctx, "failed to create notification", slog.Any("error", err))
		SendError(w, h.logger, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := toAPINotification(n)

	delivered := 0
	if h.publisher != nil {
		delivered = h.publisher.Publish(userID, resp)
	}

	h.logger.InfoContext(ctx, "notification created",
		slog.String("user_id", userID),
		slog.Int64("notification_id", n.ID),
		slog.Int("delivered", delivered))

	sendData(w, h.logger, resp, "notification created", http.StatusCreated)
}

func (h *NotificationHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "user ID not found in context")
		SendError(w, h.logger, api.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func parsePaging(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()

	size = defaultPageSize
	if v := q.Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size <= 0 {
			return 0, 0, errors.New("invalid page size")
		}
		size = min(size, maxPageSize)
	}

	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 0 {
			return 0, 0, errors.New("invalid page number")
		}
	}

	return page, size, nil
}

func toAPINotification(n *models.Notification) api.Notification {
	return api.Notification{
		CreatedAt:   n.CreatedAt,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		LinkURL:     n.LinkURL,
		ID:          n.ID,
		ReferenceID: n.ReferenceID,
		Read:        n.Read,
	}
}
