package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(id int64, read bool, at time.Time) Event {
	return Event{ID: id, Type: "COMMENT", Message: "msg", CreatedAt: at, Read: read}
}

// countUnread - эталонный подсчет для проверки инварианта
func countUnread(s *Store) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, en := range s.events {
		if !en.Read {
			n++
		}
	}
	return n
}

func TestStore_UnreadScenario(t *testing.T) {
	s := NewStore()
	now := time.Now()

	require.True(t, s.Append(ev(1, false, now)))
	require.True(t, s.Append(ev(2, false, now.Add(time.Second))))
	assert.Equal(t, 2, s.UnreadCount())

	assert.True(t, s.MarkRead(1))
	assert.Equal(t, 1, s.UnreadCount())

	// Повторная пометка ничего не меняет
	assert.False(t, s.MarkRead(1))
	assert.Equal(t, 1, s.UnreadCount())

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID, "newest first")
	assert.True(t, events[1].Read)
}

func TestStore_AppendDeduplicates(t *testing.T) {
	s := NewStore()
	now := time.Now()

	assert.True(t, s.Append(ev(1, false, now)))
	assert.False(t, s.Append(ev(1, false, now)))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.UnreadCount())

	// Дубликат с Read=true переводит событие в прочитанное
	assert.False(t, s.Append(ev(1, true, now)))
	assert.Equal(t, 0, s.UnreadCount())

	// Обратного перехода нет
	assert.False(t, s.Append(ev(1, false, now)))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestStore_Ordering(t *testing.T) {
	s := NewStore()
	base := time.Now()

	s.Append(ev(2, false, base.Add(2*time.Minute)))
	s.Append(ev(1, false, base))
	s.Append(ev(3, false, base.Add(3*time.Minute)))
	s.Append(ev(4, false, base.Add(2*time.Minute)))

	var ids []int64
	for _, e := range s.Events() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{3, 4, 2, 1}, ids)
}

func TestStore_MarkAllRead(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Append(ev(1, false, now))
	s.Append(ev(2, true, now))
	s.Append(ev(3, false, now))

	assert.Equal(t, 2, s.MarkAllRead())
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 0, s.MarkAllRead())
}

func TestStore_MarkReadUnknown(t *testing.T) {
	s := NewStore()
	assert.False(t, s.MarkRead(42))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestStore_Dismiss(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Append(ev(1, false, now))
	s.Append(ev(2, false, now))

	assert.True(t, s.Dismiss(1))
	assert.False(t, s.Dismiss(1))
	assert.False(t, s.Dismiss(99))

	require.Len(t, s.Events(), 1)
	assert.Equal(t, 2, s.UnreadCount(), "dismissed events still count until read")

	assert.True(t, s.MarkRead(1))
	assert.Equal(t, 1, s.UnreadCount())

	_, ok := s.Get(1)
	assert.True(t, ok)
}

func TestStore_Watch(t *testing.T) {
	s := NewStore()
	ch := s.Watch()
	assert.Equal(t, 0, <-ch, "current value delivered immediately")

	now := time.Now()
	s.Append(ev(1, false, now))
	s.Append(ev(2, false, now))

	// Читатель отстал: видит только последнее значение
	assert.Equal(t, 2, <-ch)

	s.MarkRead(2)
	assert.Equal(t, 1, <-ch)

	s.Reset()
	assert.Equal(t, 0, <-ch)
	assert.Empty(t, s.Events())

	s.Unwatch(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestStore_ConcurrentInvariant(t *testing.T) {
	s := NewStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := int64(i%50 + 1)
			switch i % 4 {
			case 0, 1:
				s.Append(ev(id, false, now))
			case 2:
				s.MarkRead(id)
			default:
				s.Dismiss(id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, countUnread(s), s.UnreadCount())
	assert.LessOrEqual(t, s.Len(), 50)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  int64
		wantErr bool
	}{
		{
			name:   "valid",
			body:   `{"id":7,"type":"REPLY","message":"hi","referenceId":3,"read":false,"createdAt":"2024-05-01T10:00:00Z"}`,
			wantID: 7,
		},
		{name: "not json", body: `hello`, wantErr: true},
		{name: "missing id", body: `{"type":"LIKE","message":"x"}`, wantErr: true},
		{name: "missing type", body: `{"id":1,"message":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseEvent([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, e.ID)
			assert.Equal(t, int64(3), e.ReferenceID)
			assert.False(t, e.Read)
		})
	}
}

func TestParseEvent_ReadFlag(t *testing.T) {
	e, err := ParseEvent([]byte(`{"id":1,"type":"COMMENT","message":"seen","read":true}`))
	require.NoError(t, err)
	assert.True(t, e.Read)

	s := NewStore()
	require.True(t, s.Append(e))
	assert.Zero(t, s.UnreadCount(), "already read notification does not count")
}
