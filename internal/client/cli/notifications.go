package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/iudanet/jiucom/internal/client/notify"
)

func (c *Cli) runNotifications(ctx context.Context) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}

	store := c.notifications.Store()
	events := store.Events()

	c.io.Println("=== Notifications ===")
	c.io.Println()

	if len(events) == 0 {
		c.io.Println("No notifications.")
		return nil
	}

	for _, ev := range events {
		c.PrintEvent(ev)
	}

	c.io.Println()
	c.io.Printf("Total: %d, unread: %d\n", len(events), store.UnreadCount())

	return nil
}

func (c *Cli) runUnread(ctx context.Context) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}

	n, err := c.notifications.ServerUnreadCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to get unread count: %w", err)
	}

	c.io.Printf("Unread notifications: %d\n", n)
	return nil
}

func (c *Cli) runRead(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: jiucom read <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid notification id %q", args[0])
	}

	if _, err := c.requireSession(ctx); err != nil {
		return err
	}

	changed, err := c.notifications.MarkRead(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d as read: %w", id, err)
	}

	if changed {
		c.io.Printf("✓ Notification %d marked as read\n", id)
	} else {
		c.io.Printf("Notification %d is already read\n", id)
	}
	c.io.Printf("Unread notifications: %d\n", c.notifications.Store().UnreadCount())

	return nil
}

func (c *Cli) runReadAll(ctx context.Context) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}

	n, err := c.notifications.MarkAllRead(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}

	c.io.Printf("✓ %d notification(s) marked as read\n", n)
	return nil
}

// PrintEvent выводит одно уведомление
func (c *Cli) PrintEvent(ev notify.Event) {
	mark := "•"
	if ev.Read {
		mark = " "
	}

	text := ev.Message
	if ev.Title != "" {
		text = ev.Title + ": " + ev.Message
	}

	c.io.Printf("%s [%d] %-7s %s  %s\n", mark, ev.ID, ev.Type, ev.CreatedAt.Local().Format(time.DateTime), text)
	if ev.LinkURL != "" {
		c.io.Printf("      %s\n", ev.LinkURL)
	}
}
