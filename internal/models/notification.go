package models

import "time"

// Типы уведомлений
const (
	NotificationComment = "COMMENT"
	NotificationReply   = "REPLY"
	NotificationLike    = "LIKE"
	NotificationSystem  = "SYSTEM"
)

// Notification представляет уведомление, сохраненное на сервере
type Notification struct {
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"` // получатель
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	LinkURL     string    `json:"link_url"`
	ID          int64     `json:"id"`
	ReferenceID int64     `json:"reference_id"`
	Read        bool      `json:"is_read"`
}
