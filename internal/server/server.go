// Package server собирает HTTP API, STOMP брокер и middleware в один http.Handler.
package server

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/jiucom/internal/server/handlers"
	"github.com/iudanet/jiucom/internal/server/middleware"
	"github.com/iudanet/jiucom/internal/server/storage"
)

// Storage - все хранилища, нужные обработчикам
type Storage interface {
	storage.UserStorage
	storage.TokenStorage
	storage.NotificationStorage
	handlers.Pinger
}

// Broker - live доставка уведомлений (broker.Broker)
type Broker interface {
	http.Handler
	handlers.Publisher
}

// Config параметры маршрутизатора
type Config struct {
	Version        string
	JWT            handlers.JWTConfig
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter регистрирует все маршруты API
func NewRouter(cfg Config, logger *slog.Logger, st Storage, broker Broker) http.Handler {
	authHandler := handlers.NewAuthHandler(logger, st, st, cfg.JWT)
	userHandler := handlers.NewUserHandler(logger, st)
	notificationHandler := handlers.NewNotificationHandler(logger, st, broker)
	healthHandler := handlers.NewHealthHandler(logger, st, cfg.Version)

	authMW := middleware.AuthMiddleware(logger, cfg.JWT)
	rateMW := middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)

	mux := http.NewServeMux()

	// Публичные маршруты, ограничены по IP от перебора паролей
	mux.Handle("POST /auth/signup", rateMW(http.HandlerFunc(authHandler.Signup)))
	mux.Handle("POST /auth/login", rateMW(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /auth/refresh", rateMW(http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("POST /auth/logout", rateMW(http.HandlerFunc(authHandler.Logout)))

	// Защищенные маршруты
	mux.Handle("GET /users/me", authMW(http.HandlerFunc(userHandler.Me)))
	mux.Handle("GET /notifications", authMW(http.HandlerFunc(notificationHandler.List)))
	mux.Handle("POST /notifications", authMW(http.HandlerFunc(notificationHandler.Create)))
	mux.Handle("GET /notifications/unread-count", authMW(http.HandlerFunc(notificationHandler.UnreadCount)))
	mux.Handle("PATCH /notifications/read", authMW(http.HandlerFunc(notificationHandler.MarkAllRead)))
	mux.Handle("PATCH /notifications/{id}/read", authMW(http.HandlerFunc(notificationHandler.MarkRead)))

	// WebSocket: токен проверяет сам брокер (заголовок upgrade или CONNECT)
	mux.Handle("GET /ws", broker)
	mux.Handle("GET /ws/websocket", broker)

	mux.HandleFunc("GET /health", healthHandler.Health)

	// Порядок: recovery -> logging -> mux
	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(logger, []string{"/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler
}
