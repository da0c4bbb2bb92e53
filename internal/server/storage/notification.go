package storage

import (
	"context"

	"github.com/iudanet/jiucom/internal/models"
)

//go:generate moq -out notification_mock.go . NotificationStorage

// NotificationStorage defines interface for notification persistence
type NotificationStorage interface {
	// CreateNotification stores a notification and fills its ID
	CreateNotification(ctx context.Context, n *models.Notification) error

	// ListNotifications returns one page of the user's notifications, newest first,
	// and the total number of notifications
	ListNotifications(ctx context.Context, userID string, offset, limit int) ([]*models.Notification, int64, error)

	// CountUnread returns the number of unread notifications
	CountUnread(ctx context.Context, userID string) (int64, error)

	// MarkRead marks one notification as read. Marking an already read
	// notification is not an error.
	// Returns ErrNotificationNotFound if it doesn't exist or belongs to another user
	MarkRead(ctx context.Context, userID string, id int64) error

	// MarkAllRead marks all user's notifications as read
	// Returns number of changed notifications
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}
