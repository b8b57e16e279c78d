// Package realtime pushes events to connected clients grouped in rooms.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/notify"
)

const subscriberBuffer = 32

var ErrForbiddenRoom = errors.New("room not allowed")

type subscriber struct {
	rooms map[string]struct{}
	ch    chan notify.Event
}

// Hub delivers events to local subscribers of the event's rooms. A slow
// subscriber loses events instead of blocking delivery.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe joins rooms and returns the event channel plus a function that
// leaves them and closes the channel.
func (h *Hub) Subscribe(rooms ...string) (<-chan notify.Event, func()) {
	s := &subscriber{
		rooms: make(map[string]struct{}, len(rooms)),
		ch:    make(chan notify.Event, subscriberBuffer),
	}
	for _, r := range rooms {
		s.rooms[r] = struct{}{}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

func (h *Hub) Deliver(ctx context.Context, e notify.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			logging.FromContext(ctx).WithField("event_type", e.Type).Warn("realtime subscriber is full, event dropped")
		}
	}
}

// Publish lets the hub act as a sink when events are not bridged through Redis.
func (h *Hub) Publish(ctx context.Context, e notify.Event) error {
	h.Deliver(ctx, e)
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *subscriber) wants(e notify.Event) bool {
	for _, r := range e.Rooms {
		if _, ok := s.rooms[r]; ok {
			return true
		}
	}
	return false
}

// Authorize checks that a caller may join every room. Staff rooms are limited
// to their role and a private room to its owner.
func Authorize(rooms []string, userID int64, role string) error {
	for _, room := range rooms {
		switch {
		case room == domain.RoomFlights, strings.HasPrefix(room, "flight:"):
		case room == domain.RoomAdmin || room == domain.RoomManager:
			if role != room {
				return fmt.Errorf("%w: %s requires role %s", ErrForbiddenRoom, room, room)
			}
		case strings.HasPrefix(room, "user:"):
			owner, err := strconv.ParseInt(strings.TrimPrefix(room, "user:"), 10, 64)
			if err != nil || owner != userID {
				return fmt.Errorf("%w: %s belongs to another user", ErrForbiddenRoom, room)
			}
		default:
			return domain.Validation(fmt.Sprintf("unknown room %q", room))
		}
	}
	return nil
}

var _ notify.Sink = (*Hub)(nil)
