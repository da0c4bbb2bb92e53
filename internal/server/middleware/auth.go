package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/jiucom/internal/server/handlers"
	"github.com/iudanet/jiucom/pkg/api"
)

// AuthMiddleware создает middleware для проверки JWT токена
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenString, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.WarnContext(ctx, "missing or malformed Authorization header")
				handlers.SendError(w, logger, api.CodeUnauthorized, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, tokenString)
			if err != nil {
				if errors.Is(err, handlers.ErrTokenExpired) {
					logger.DebugContext(ctx, "access token expired")
					handlers.SendError(w, logger, api.CodeExpiredToken, "access token expired", http.StatusUnauthorized)
					return
				}
				logger.WarnContext(ctx, "invalid access token", slog.Any("error", err))
				handlers.SendError(w, logger, api.CodeInvalidToken, "invalid token", http.StatusUnauthorized)
				return
			}

			logger.DebugContext(ctx, "user authenticated", slog.String("user_id", claims.UserID))

			next.ServeHTTP(w, r.WithContext(handlers.WithClaims(ctx, claims)))
		})
	}
}

// BearerToken достает токен из значения "Bearer <token>"
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
