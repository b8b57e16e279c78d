package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type publisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error
}

const (
	publishAttempts = 3
	flushTimeout    = 5 * time.Second
)

// ErrEventBufferFull is returned when events arrive faster than the event log
// accepts them. The event is dropped.
var ErrEventBufferFull = errors.New("event log buffer is full")

// EventSink writes domain events to the event log topic. Publish only queues
// the event; Run does the writing, one event at a time, so events for the
// same flight keep their order and share a partition key.
type EventSink struct {
	producer publisher
	topic    string
	queue    chan notify.Event
}

func NewEventSink(producer publisher, topic string, buffer int) *EventSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &EventSink{producer: producer, topic: topic, queue: make(chan notify.Event, buffer)}
}

func (s *EventSink) Publish(_ context.Context, e notify.Event) error {
	select {
	case s.queue <- e:
		return nil
	default:
		return ErrEventBufferFull
	}
}

// Run writes queued events until ctx is done, then flushes what is left
// within a bounded time.
func (s *EventSink) Run(ctx context.Context) error {
	for {
		select {
		case e := <-s.queue:
			s.write(ctx, e)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			for {
				select {
				case e := <-s.queue:
					s.write(flushCtx, e)
				default:
					return nil
				}
			}
		}
	}
}

func (s *EventSink) write(ctx context.Context, e notify.Event) {
	if err := s.producer.PublishWithRetry(ctx, s.topic, eventKey(e), e, publishAttempts); err != nil {
		logging.FromContext(ctx).WithFields(logrus.Fields{
			"event_id":   e.ID,
			"event_type": e.Type,
		}).WithError(err).Error("event log write failed")
	}
}

func eventKey(e notify.Event) string {
	if e.FlightID != 0 {
		return strconv.FormatInt(e.FlightID, 10)
	}
	return e.ID
}

func DecodeEvent(msg kafka.Message) (notify.Event, error) {
	var e notify.Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return notify.Event{}, fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	return e, nil
}

var _ notify.Sink = (*EventSink)(nil)
