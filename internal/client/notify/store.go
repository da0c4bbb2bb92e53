package notify

import (
	"slices"
	"sync"
)

type entry struct {
	Event
	dismissed bool
}

// Store holds known notifications newest first. UnreadCount always equals
// the number of known events with Read == false, dismissed ones included.
type Store struct {
	byID     map[int64]*entry
	events   []*entry
	watchers []chan int
	unread   int
	mu       sync.Mutex
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{byID: make(map[int64]*entry)}
}

// Append добавляет событие. Повторное событие с известным id не добавляется;
// оно лишь может перевести уже известное событие в прочитанное.
// Возвращает true, если событие новое.
func (s *Store) Append(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[e.ID]; ok {
		if e.Read && !existing.Read {
			existing.Read = true
			s.unread--
			s.notifyLocked()
		}
		return false
	}

	en := &entry{Event: e}
	s.byID[e.ID] = en

	// Сортировка: CreatedAt по убыванию, при равенстве - id по убыванию
	i, _ := slices.BinarySearchFunc(s.events, en, func(a, b *entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	s.events = slices.Insert(s.events, i, en)

	if !e.Read {
		s.unread++
		s.notifyLocked()
	}
	return true
}

// MarkRead помечает событие прочитанным. Возвращает true, только если
// состояние действительно изменилось; повторный вызов ничего не делает.
func (s *Store) MarkRead(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.byID[id]
	if !ok || en.Read {
		return false
	}
	en.Read = true
	s.unread--
	s.notifyLocked()
	return true
}

// MarkAllRead помечает все известные события прочитанными и возвращает
// число измененных
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, en := range s.events {
		if !en.Read {
			en.Read = true
			changed++
		}
	}
	if changed > 0 {
		s.unread = 0
		s.notifyLocked()
	}
	return changed
}

// Dismiss скрывает событие из Events. Счетчик не меняется.
func (s *Store) Dismiss(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.byID[id]
	if !ok || en.dismissed {
		return false
	}
	en.dismissed = true
	return true
}

// Get возвращает событие по id, включая скрытые
func (s *Store) Get(id int64) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, ok := s.byID[id]
	if !ok {
		return Event{}, false
	}
	return en.Event, true
}

// Events возвращает копию видимых событий, новые первыми
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0, len(s.events))
	for _, en := range s.events {
		if !en.dismissed {
			out = append(out, en.Event)
		}
	}
	return out
}

// UnreadCount возвращает число непрочитанных
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Len возвращает число известных событий
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Watch returns a channel that receives the unread count after every change.
// The channel holds only the latest value; a slow reader skips intermediate
// counts but never sees a stale one last. The current count is delivered
// immediately.
func (s *Store) Watch() <-chan int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan int, 1)
	ch <- s.unread
	s.watchers = append(s.watchers, ch)
	return ch
}

// Unwatch отписывает канал, полученный из Watch, и закрывает его
func (s *Store) Unwatch(ch <-chan int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.watchers {
		if w == ch {
			s.watchers = slices.Delete(s.watchers, i, i+1)
			close(w)
			return
		}
	}
}

// Reset удаляет все события (выход из сессии)
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[int64]*entry)
	s.events = nil
	if s.unread != 0 {
		s.unread = 0
		s.notifyLocked()
	}
}

// notifyLocked заменяет значение в каждом канале на актуальное
func (s *Store) notifyLocked() {
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s.unread
	}
}
