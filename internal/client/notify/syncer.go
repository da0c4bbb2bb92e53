package notify

import (
	"context"
	"fmt"
	"log/slog"

	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

//go:generate moq -out api_mock.go . NotificationAPI

// NotificationAPI - REST операции над уведомлениями (*api.Client)
type NotificationAPI interface {
	ListNotifications(ctx context.Context, page, size int) (*pkgapi.Page[pkgapi.Notification], error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Syncer связывает Store с REST API: загружает первые страницы после входа
// и подтверждает прочтение на сервере до изменения локального состояния.
type Syncer struct {
	api      NotificationAPI
	store    *Store
	logger   *slog.Logger
	pageSize int
	maxPages int
}

// SyncerOption настраивает Syncer
type SyncerOption func(*Syncer)

// WithPageSize задает размер страницы и число загружаемых страниц
func WithPageSize(size, pages int) SyncerOption {
	return func(s *Syncer) {
		s.pageSize = size
		s.maxPages = pages
	}
}

// WithSyncerLogger задает логгер
func WithSyncerLogger(logger *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// NewSyncer создает Syncer
func NewSyncer(api NotificationAPI, store *Store, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		api:      api,
		store:    store,
		logger:   slog.New(slog.DiscardHandler),
		pageSize: 20,
		maxPages: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store возвращает локальное хранилище
func (s *Syncer) Store() *Store {
	return s.store
}

// Seed загружает уведомления с сервера. События, уже пришедшие через канал,
// не дублируются.
func (s *Syncer) Seed(ctx context.Context) error {
	loaded := 0
	for page := 0; page < s.maxPages; page++ {
		resp, err := s.api.ListNotifications(ctx, page, s.pageSize)
		if err != nil {
			return fmt.Errorf("failed to load notifications page %d: %w", page, err)
		}
		for _, n := range resp.Content {
			if s.store.Append(FromAPI(n)) {
				loaded++
			}
		}
		if resp.Last || len(resp.Content) == 0 {
			break
		}
	}

	s.logger.DebugContext(ctx, "notifications loaded",
		slog.Int("new", loaded),
		slog.Int("unread", s.store.UnreadCount()),
	)
	return nil
}

// Reset очищает локальное хранилище
func (s *Syncer) Reset() {
	s.store.Reset()
}

// MarkRead помечает уведомление прочитанным на сервере, затем локально.
// Возвращает true, если локальное состояние изменилось.
func (s *Syncer) MarkRead(ctx context.Context, id int64) (bool, error) {
	if ev, ok := s.store.Get(id); ok && ev.Read {
		return false, nil
	}
	if err := s.api.MarkRead(ctx, id); err != nil {
		return false, err
	}
	return s.store.MarkRead(id), nil
}

// MarkAllRead помечает все уведомления прочитанными на сервере, затем локально
func (s *Syncer) MarkAllRead(ctx context.Context) (int, error) {
	if err := s.api.MarkAllRead(ctx); err != nil {
		return 0, err
	}
	return s.store.MarkAllRead(), nil
}

// ServerUnreadCount спрашивает счетчик у сервера и сверяет с локальным
func (s *Syncer) ServerUnreadCount(ctx context.Context) (int64, error) {
	n, err := s.api.UnreadCount(ctx)
	if err != nil {
		return 0, err
	}
	if local := s.store.UnreadCount(); int64(local) != n {
		s.logger.DebugContext(ctx, "unread count differs from server",
			slog.Int("local", local),
			slog.Int64("server", n),
		)
	}
	return n, nil
}
