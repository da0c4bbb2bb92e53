package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/iudanet/jiucom/internal/client/iocli"
	"github.com/iudanet/jiucom/internal/client/notify"
	"github.com/iudanet/jiucom/internal/models"
	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// PasswordEnv - переменная окружения с паролем для неинтерактивного входа
const PasswordEnv = "JIUCOM_PASSWORD"

//go:generate moq -out session_mock.go . SessionService

// SessionService - жизненный цикл сессии (*auth.Service)
type SessionService interface {
	Login(ctx context.Context, email, password string) (*pkgapi.UserProfile, error)
	Signup(ctx context.Context, req pkgapi.SignupRequest) (*pkgapi.UserProfile, error)
	Logout(ctx context.Context) error
	RestoreSession(ctx context.Context) (*pkgapi.UserProfile, error)
	Credential() *models.Credential
	Invalidated() <-chan error
}

//go:generate moq -out notifications_mock.go . NotificationService

// NotificationService - операции над уведомлениями (*notify.Syncer)
type NotificationService interface {
	MarkRead(ctx context.Context, id int64) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
	ServerUnreadCount(ctx context.Context) (int64, error)
	Store() *notify.Store
}

// Passwords - неинтерактивные источники пароля
type Passwords struct {
	FromFile string
	FromArgs string
}

type Cli struct {
	io            iocli.IO
	session       SessionService
	notifications NotificationService
	passwords     Passwords
}

func New(io iocli.IO, session SessionService, notifications NotificationService, passwords Passwords) *Cli {
	return &Cli{
		io:            io,
		session:       session,
		notifications: notifications,
		passwords:     passwords,
	}
}

// getPassword retrieves the account password with priority:
// 1. Environment variable JIUCOM_PASSWORD
// 2. File specified by --password-file
// 3. Command-line parameter --password
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(prompt string) (string, error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	// Priority 2: File
	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	// Priority 3: CLI parameter
	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, nil
	}

	// Priority 4: Interactive prompt (fallback)
	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	return password, nil
}

func PrintUsage(io iocli.IO) {
	io.Println("jiucom client")
	io.Println()
	io.Println("Usage:")
	io.Println("  jiucom [OPTIONS] COMMAND")
	io.Println()
	io.Println("Options:")
	io.Println("  --version                 Show version information")
	io.Println("  --server URL              API base URL (default: http://localhost:8080)")
	io.Println("  --ws URL                  STOMP WebSocket URL (default: derived from --server)")
	io.Println("  --destination DEST        STOMP destination, {userId} is substituted")
	io.Println("  --db PATH                 Path to local database (default: jiucom-client.db)")
	io.Println("  --password PASSWORD       Account password (not recommended, use env var or file)")
	io.Println("  --password-file PATH      Path to file containing account password")
	io.Println("  --log-level LEVEL         debug, info, warn, error")
	io.Println()
	io.Println("Commands:")
	io.Println("  signup                    Create an account and log in")
	io.Println("  login                     Log in to the server")
	io.Println("  logout                    Log out and delete the local session")
	io.Println("  status                    Show session status")
	io.Println("  notifications             List notifications")
	io.Println("  unread                    Show unread notification count")
	io.Println("  read <id>                 Mark a notification as read")
	io.Println("  read-all                  Mark all notifications as read")
	io.Println("  watch                     Stream live notifications until Ctrl-C")
	io.Println()
	io.Println("Examples:")
	io.Println("  jiucom login")
	io.Println("  jiucom notifications")
	io.Println("  JIUCOM_PASSWORD='secret123' jiucom login")
	io.Println("  jiucom --server https://example.com watch")
}
