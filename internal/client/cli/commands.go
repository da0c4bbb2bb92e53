package cli

import (
	"context"
	"fmt"
)

// Run выполняет команду и возвращает ошибку для вывода пользователю
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "signup":
		return c.runSignup(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "notifications", "list":
		return c.runNotifications(ctx)
	case "unread":
		return c.runUnread(ctx)
	case "read":
		return c.runRead(ctx, args)
	case "read-all":
		return c.runReadAll(ctx)
	case "watch":
		return c.runWatch(ctx)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}
