package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/iudanet/jiucom/internal/client/auth"
	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	// Запрашиваем email
	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	password, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("Authenticating...")

	profile, err := c.session.Login(ctx, email, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.printProfile(profile)
	c.io.Println()
	c.io.Println("Your session has been saved.")

	return nil
}

func (c *Cli) runSignup(ctx context.Context) error {
	c.io.Println("=== Sign up ===")
	c.io.Println()

	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	nickname, err := c.io.ReadInput("Nickname: ")
	if err != nil {
		return fmt.Errorf("failed to read nickname: %w", err)
	}

	password, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}

	// Подтверждение только для интерактивного ввода
	if c.passwords == (Passwords{}) && os.Getenv(PasswordEnv) == "" {
		confirm, err := c.io.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if confirm != password {
			return fmt.Errorf("passwords do not match")
		}
	}

	c.io.Println()
	c.io.Println("Creating account...")

	profile, err := c.session.Signup(ctx, pkgapi.SignupRequest{
		Email:    email,
		Password: password,
		Nickname: nickname,
	})
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Account created!")
	c.printProfile(profile)

	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	c.io.Println("=== Logout ===")

	if c.session.Credential() == nil {
		c.io.Println("Not logged in.")
		return nil
	}

	if err := c.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	c.io.Println("✓ Logout successful!")
	c.io.Println("Your local session has been deleted.")

	return nil
}

// requireSession восстанавливает сессию для команд, которым нужен сервер
func (c *Cli) requireSession(ctx context.Context) (*pkgapi.UserProfile, error) {
	profile, err := c.session.RestoreSession(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return nil, fmt.Errorf("not authenticated. Please run 'jiucom login' first")
		}
		return nil, err
	}
	return profile, nil
}

func (c *Cli) printProfile(p *pkgapi.UserProfile) {
	if p == nil {
		return
	}
	c.io.Printf("Email:    %s\n", p.Email)
	c.io.Printf("Nickname: %s\n", p.Nickname)
	if p.Role != "" {
		c.io.Printf("Role:     %s\n", p.Role)
	}
}
