package cli

import (
	"context"
	"errors"
	"time"

	"github.com/iudanet/jiucom/internal/client/auth"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Session Status ===")
	c.io.Println()

	profile, err := c.session.RestoreSession(ctx)
	if errors.Is(err, auth.ErrNoSession) {
		c.io.Println("Status: Not authenticated")
		c.io.Println()
		c.io.Println("Run 'jiucom login' to authenticate.")
		return nil
	}

	cred := c.session.Credential()
	if cred != nil {
		// Подпись не проверяем: это только отображение
		if info, infoErr := auth.InspectAccessToken(cred.AccessToken); infoErr == nil && !info.ExpiresAt.IsZero() {
			remaining := time.Until(info.ExpiresAt)
			c.io.Printf("Access token expires: %s\n", info.ExpiresAt.Local().Format(time.RFC3339))
			if remaining > 0 {
				c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
			} else {
				c.io.Println("Access token expired, it will be refreshed on the next request.")
			}
		}
	}

	if err != nil {
		c.io.Println("Status: Saved session, could not verify it with the server")
		c.io.Printf("Error: %v\n", err)
		return nil
	}

	c.io.Println("Status: Authenticated")
	c.printProfile(profile)

	c.io.Println()
	c.io.Printf("Unread notifications: %d\n", c.notifications.Store().UnreadCount())

	return nil
}
