package cli

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionEnded возвращается из watch, когда сервер завершил сессию
var ErrSessionEnded = errors.New("session ended by server, please log in again")

func (c *Cli) runWatch(ctx context.Context) error {
	profile, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	store := c.notifications.Store()
	counts := store.Watch()
	defer store.Unwatch(counts)

	c.io.Printf("Watching notifications for %s (Ctrl-C to stop)\n", profile.Nickname)
	c.io.Println()

	last := -1
	for {
		select {
		case <-ctx.Done():
			c.io.Println()
			c.io.Println("Stopped.")
			return nil
		case cause := <-c.session.Invalidated():
			return fmt.Errorf("%w: %v", ErrSessionEnded, cause)
		case n, ok := <-counts:
			if !ok {
				return nil
			}
			if n != last {
				c.io.Printf("Unread: %d\n", n)
				last = n
			}
		}
	}
}
