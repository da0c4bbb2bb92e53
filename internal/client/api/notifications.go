package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// ListNotifications возвращает страницу уведомлений, новые первыми
func (c *Client) ListNotifications(ctx context.Context, page, size int) (*pkgapi.Page[pkgapi.Notification], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var resp pkgapi.Page[pkgapi.Notification]
	if err := c.doRequest(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list notifications request failed: %w", err)
	}
	return &resp, nil
}

// UnreadCount возвращает число непрочитанных уведомлений по версии сервера
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var resp pkgapi.UnreadCountResponse
	if err := c.doRequest(ctx, http.MethodGet, "/notifications/unread-count", nil, &resp); err != nil {
		return 0, fmt.Errorf("unread count request failed: %w", err)
	}
	return resp.UnreadCount, nil
}

// MarkRead помечает одно уведомление прочитанным
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	path := "/notifications/" + strconv.FormatInt(id, 10) + "/read"
	if err := c.doRequest(ctx, http.MethodPatch, path, nil, nil); err != nil {
		return fmt.Errorf("mark read request failed: %w", err)
	}
	return nil
}

// MarkAllRead помечает все уведомления прочитанными
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPatch, "/notifications/read", nil, nil); err != nil {
		return fmt.Errorf("mark all read request failed: %w", err)
	}
	return nil
}

// CreateNotification создает уведомление для текущего пользователя (dev backend)
func (c *Client) CreateNotification(ctx context.Context, req pkgapi.CreateNotificationRequest) (*pkgapi.Notification, error) {
	var resp pkgapi.Notification
	if err := c.doRequest(ctx, http.MethodPost, "/notifications", req, &resp); err != nil {
		return nil, fmt.Errorf("create notification request failed: %w", err)
	}
	return &resp, nil
}
