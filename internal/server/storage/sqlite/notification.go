package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/jiucom/internal/models"
	"github.com/iudanet/jiucom/internal/server/storage"
)

// CreateNotification stores a notification and fills its ID
func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, message, link_url, reference_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.LinkURL,
		n.ReferenceID,
		n.Read,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification id: %w", err)
	}
	n.ID = id

	return nil
}

// ListNotifications returns one page of the user's notifications, newest first
func (s *Storage) ListNotifications(ctx context.Context, userID string, offset, limit int) ([]*models.Notification, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT id, user_id, type, title, message, link_url, reference_id, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*models.Notification

	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.LinkURL,
			&n.ReferenceID,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return list, total, nil
}

// CountUnread returns the number of unread notifications
func (s *Storage) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification as read
func (s *Storage) MarkRead(ctx context.Context, userID string, id int64) error {
	// Проверяем владельца отдельно: UPDATE уже прочитанного не меняет строк
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to find notification: %w", err)
	}
	if exists == 0 {
		return storage.ErrNotificationNotFound
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID,
	); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

// MarkAllRead marks all user's notifications as read
func (s *Storage) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// DeleteReadNotificationsBefore удаляет прочитанные уведомления, созданные раньше cutoff.
// Непрочитанные не удаляются независимо от возраста.
// Returns number of deleted notifications
func (s *Storage) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// created_at сравниваем в Go: текстовый формат времени зависит от драйвера
	rows, err := tx.QueryContext(ctx, `SELECT id, created_at FROM notifications WHERE is_read = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to query read notifications: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var (
			id        int64
			createdAt time.Time
		)
		if err := rows.Scan(&id, &createdAt); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		if createdAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("rows iteration error: %w", err)
	}
	_ = rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete notification %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return int64(len(ids)), nil
}
