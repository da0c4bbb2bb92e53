package api

import (
	"context"
	"fmt"
	"net/http"

	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// Signup регистрирует нового пользователя и сразу возвращает пару токенов
func (c *Client) Signup(ctx context.Context, req pkgapi.SignupRequest) (*pkgapi.TokenResponse, error) {
	var resp pkgapi.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/signup", req, &resp); err != nil {
		return nil, fmt.Errorf("signup request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
	var resp pkgapi.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обменивает refresh token на новую пару токенов
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error) {
	if refreshToken == "" {
		return nil, errNoRefreshToken
	}

	var resp pkgapi.TokenResponse
	req := pkgapi.RefreshRequest{RefreshToken: refreshToken}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", req, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh response has no access token")
	}
	return &resp, nil
}

// Logout отзывает refresh token на сервере
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := pkgapi.LogoutRequest{RefreshToken: refreshToken}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", req, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Profile возвращает профиль текущего пользователя
func (c *Client) Profile(ctx context.Context) (*pkgapi.UserProfile, error) {
	var resp pkgapi.UserProfile
	if err := c.doRequest(ctx, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	return &resp, nil
}
