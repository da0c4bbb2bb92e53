// Package broker is a minimal STOMP 1.2 broker over WebSocket. It only
// pushes: clients subscribe to their own notification queue and the server
// publishes to it. SEND and transactions are not supported.
package broker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/jiucom/internal/server/handlers"
	"github.com/iudanet/jiucom/internal/server/middleware"
	"github.com/iudanet/jiucom/internal/stomp"
	"github.com/iudanet/jiucom/pkg/api"
)

const (
	// UserDestination очередь текущего пользователя
	UserDestination = "/user/queue/notifications"
	// QueuePrefix явная очередь пользователя: QueuePrefix + userID
	QueuePrefix = "/queue/notifications/"

	serverName     = "jiucom"
	connectWait    = 10 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// ErrInvalidToken токен не прошел проверку
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator проверяет bearer token и возвращает ID пользователя
type TokenValidator func(token string) (string, error)

// JWTValidator проверяет access token тем же ключом, что и REST API
func JWTValidator(cfg handlers.JWTConfig) TokenValidator {
	return func(token string) (string, error) {
		claims, err := handlers.ValidateAccessToken(cfg, token)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}
}

// Broker принимает STOMP сессии и рассылает уведомления подписчикам
type Broker struct {
	sessions  map[string]map[*session]struct{} // userID -> сессии
	logger    *slog.Logger
	validate  TokenValidator
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	mu        sync.RWMutex
}

// Option настраивает Broker
type Option func(*Broker)

// WithHeartBeat задает интервал heart-beat, который брокер предлагает клиентам.
// Ноль отключает heart-beat.
func WithHeartBeat(d time.Duration) Option {
	return func(b *Broker) {
		b.heartbeat = d
	}
}

// WithCheckOrigin задает проверку Origin при upgrade
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(b *Broker) {
		b.upgrader.CheckOrigin = fn
	}
}

// New создает брокер
func New(logger *slog.Logger, validate TokenValidator, opts ...Option) *Broker {
	b := &Broker{
		sessions:  make(map[string]map[*session]struct{}),
		logger:    logger,
		validate:  validate,
		heartbeat: 10 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"v12.stomp"},
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ServeHTTP обрабатывает GET /ws и /ws/websocket.
// Токен можно передать в заголовке upgrade запроса или в CONNECT кадре.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	headerToken, hasHeader := middleware.BearerToken(r.Header.Get("Authorization"))
	if hasHeader {
		if _, err := b.validate(headerToken); err != nil {
			b.logger.WarnContext(ctx, "websocket upgrade rejected", slog.Any("error", err))
			handlers.SendError(w, b.logger, api.CodeInvalidToken, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		b.logger.WarnContext(ctx, "websocket upgrade failed", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s := newSession(b, conn)
	s.run(headerToken)
}

// Publish отправляет уведомление во все подписки пользователя.
// Возвращает число сессий, в которые сообщение поставлено в очередь.
func (b *Broker) Publish(userID string, n api.Notification) int {
	body, err := json.Marshal(n)
	if err != nil {
		b.logger.Error("failed to marshal notification", slog.Any("error", err))
		return 0
	}

	b.mu.RLock()
	targets := make([]*session, 0, len(b.sessions[userID]))
	for s := range b.sessions[userID] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.deliver(body) {
			delivered++
		}
	}

	b.logger.Debug("notification published",
		slog.String("user_id", userID),
		slog.Int64("notification_id", n.ID),
		slog.Int("sessions", delivered))

	return delivered
}

// SessionCount возвращает число открытых STOMP сессий
func (b *Broker) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, set := range b.sessions {
		count += len(set)
	}
	return count
}

// Close закрывает все сессии, используется при остановке сервера
func (b *Broker) Close() {
	b.mu.Lock()
	var all []*session
	for _, set := range b.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		s.fail("server shutting down")
	}
}

func (b *Broker) register(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.sessions[s.userID]
	if !ok {
		set = make(map[*session]struct{})
		b.sessions[s.userID] = set
	}
	set[s] = struct{}{}
}

func (b *Broker) unregister(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.sessions[s.userID]
	delete(set, s)
	if len(set) == 0 {
		delete(b.sessions, s.userID)
	}
}

// allowed сообщает, может ли пользователь подписаться на destination
func allowed(userID, destination string) bool {
	if destination == UserDestination {
		return true
	}
	id, ok := strings.CutPrefix(destination, QueuePrefix)
	return ok && id == userID
}

func newMessage(destination, subscription string, body []byte) *stomp.Frame {
	f := stomp.NewFrame(stomp.CmdMessage,
		stomp.HdrDestination, destination,
		stomp.HdrSubscription, subscription,
		stomp.HdrMessageID, uuid.NewString(),
		stomp.HdrContentType, "application/json",
	)
	f.Body = body
	return f
}
