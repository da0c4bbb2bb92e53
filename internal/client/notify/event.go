// Package notify доставляет уведомления пользователю: локальное хранилище
// с инвариантом счетчика непрочитанных, live канал STOMP поверх WebSocket
// и начальная загрузка через REST.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgapi "github.com/iudanet/jiucom/pkg/api"
)

// ErrMalformedEvent возвращается для тела MESSAGE, которое нельзя применить
var ErrMalformedEvent = errors.New("malformed notification event")

// Event - уведомление в локальном хранилище.
// ID, Type, ReferenceID и CreatedAt клиент никогда не меняет,
// Read меняется только с false на true.
type Event struct {
	CreatedAt   time.Time
	Type        string
	Title       string
	Message     string
	LinkURL     string
	ID          int64
	ReferenceID int64
	Read        bool
}

// FromAPI converts a REST/STOMP payload into an Event.
func FromAPI(n pkgapi.Notification) Event {
	return Event{
		CreatedAt:   n.CreatedAt,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		LinkURL:     n.LinkURL,
		ID:          n.ID,
		ReferenceID: n.ReferenceID,
		Read:        n.Read,
	}
}

// ParseEvent декодирует JSON тело STOMP MESSAGE
func ParseEvent(body []byte) (Event, error) {
	var n pkgapi.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if n.ID <= 0 {
		return Event{}, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if n.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return FromAPI(n), nil
}
