package api

import "time"

// Notification представляет событие уведомления как его отдает REST API
// и как оно приходит в теле STOMP MESSAGE.
type Notification struct {
	CreatedAt   time.Time `json:"createdAt"`
	Type        string    `json:"type"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message"`
	LinkURL     string    `json:"linkUrl,omitempty"`
	ID          int64     `json:"id"`
	ReferenceID int64     `json:"referenceId,omitempty"`
	Read        bool      `json:"read"`
}

// CreateNotificationRequest используется dev-эндпоинтом POST /notifications
type CreateNotificationRequest struct {
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message"`
	LinkURL     string `json:"linkUrl,omitempty"`
	ReferenceID int64  `json:"referenceId,omitempty"`
}

// UnreadCountResponse ответ GET /notifications/unread-count
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

// MarkAllReadResponse ответ PATCH /notifications/read
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// Page is a single page of a paginated listing.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// NewPage builds page metadata around content.
func NewPage[T any](content []T, page, size int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    pages,
		First:         page == 0,
		Last:          page+1 >= pages,
	}
}
