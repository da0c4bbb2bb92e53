package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

type fakeNotificationAPI struct {
	markErr error
	all     []pkgapi.Notification
	marked  []int64
	pages   []int
	markAll int
	unread  int64
}

func (f *fakeNotificationAPI) ListNotifications(ctx context.Context, page, size int) (*pkgapi.Page[pkgapi.Notification], error) {
	f.pages = append(f.pages, page)
	from := min(page*size, len(f.all))
	to := min(from+size, len(f.all))
	p := pkgapi.NewPage(f.all[from:to], page, size, int64(len(f.all)))
	return &p, nil
}

func (f *fakeNotificationAPI) UnreadCount(ctx context.Context) (int64, error) {
	return f.unread, nil
}

func (f *fakeNotificationAPI) MarkRead(ctx context.Context, id int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeNotificationAPI) MarkAllRead(ctx context.Context) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markAll++
	return nil
}

func makeNotifications(n int) []pkgapi.Notification {
	now := time.Now()
	out := make([]pkgapi.Notification, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, pkgapi.Notification{
			ID:        int64(i),
			Type:      "COMMENT",
			Message:   "comment",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			Read:      i%2 == 0,
		})
	}
	return out
}

func TestSyncer_Seed(t *testing.T) {
	api := &fakeNotificationAPI{all: makeNotifications(5)}
	store := NewStore()
	s := NewSyncer(api, store, WithPageSize(2, 10))

	// Событие уже пришло по каналу до загрузки
	store.Append(FromAPI(api.all[0]))

	require.NoError(t, s.Seed(context.Background()))

	assert.Equal(t, []int{0, 1, 2}, api.pages)
	assert.Equal(t, 5, store.Len())
	assert.Equal(t, 3, store.UnreadCount())
	assert.Equal(t, int64(5), store.Events()[0].ID)
}

func TestSyncer_SeedPageLimit(t *testing.T) {
	api := &fakeNotificationAPI{all: makeNotifications(10)}
	store := NewStore()
	s := NewSyncer(api, store, WithPageSize(2, 2))

	require.NoError(t, s.Seed(context.Background()))
	assert.Equal(t, 4, store.Len())
}

func TestSyncer_MarkRead(t *testing.T) {
	api := &fakeNotificationAPI{}
	store := NewStore()
	store.Append(Event{ID: 1, Type: "LIKE", CreatedAt: time.Now()})
	s := NewSyncer(api, store)
	ctx := context.Background()

	changed, err := s.MarkRead(ctx, 1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 0, store.UnreadCount())

	// Уже прочитано: на сервер не ходим
	changed, err = s.MarkRead(ctx, 1)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []int64{1}, api.marked)
}

func TestSyncer_MarkReadServerFailure(t *testing.T) {
	api := &fakeNotificationAPI{markErr: errors.New("boom")}
	store := NewStore()
	store.Append(Event{ID: 1, Type: "LIKE", CreatedAt: time.Now()})
	s := NewSyncer(api, store)

	_, err := s.MarkRead(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 1, store.UnreadCount(), "local state unchanged until the server accepts")

	_, err = s.MarkAllRead(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, store.UnreadCount())
}

func TestSyncer_MarkAllReadAndReset(t *testing.T) {
	api := &fakeNotificationAPI{all: makeNotifications(4), unread: 2}
	store := NewStore()
	s := NewSyncer(api, store)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))
	n, err := s.ServerUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	changed, err := s.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, 1, api.markAll)

	s.Reset()
	assert.Zero(t, store.Len())
}
