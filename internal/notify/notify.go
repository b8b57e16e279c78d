// Package notify delivers domain events to interested audiences. Delivery is
// best effort: a failing sink is logged and never fails the operation that
// produced the event.
package notify

import (
	"context"
	"time"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Event struct {
	ID         string           `json:"id"`
	Type       domain.EventType `json:"type"`
	Rooms      []string         `json:"rooms"`
	FlightID   int64            `json:"flight_id,omitempty"`
	UserID     int64            `json:"user_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// New builds an event with a fresh id and timestamp.
func New(t domain.EventType, rooms ...string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Rooms:      rooms,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink publishes an event somewhere. Errors are reported to the caller.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Fanout sends every event to each sink in turn.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Notify(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	for _, s := range f.sinks {
		if err := s.Publish(ctx, e); err != nil {
			logging.FromContext(ctx).WithFields(logrus.Fields{
				"event_id":   e.ID,
				"event_type": e.Type,
			}).WithError(err).Warn("event delivery failed")
		}
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

var (
	_ Notifier = (*Fanout)(nil)
	_ Notifier = Nop{}
)
