package realtime

import (
	"context"
	"encoding/json"

	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// StreamSink publishes events to a watermill topic so every instance's hub
// sees them.
type StreamSink struct {
	pub   message.Publisher
	topic string
}

func NewStreamSink(pub message.Publisher, topic string) *StreamSink {
	return &StreamSink{pub: pub, topic: topic}
}

func (s *StreamSink) Publish(_ context.Context, e notify.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("type", string(e.Type))
	return s.pub.Publish(s.topic, msg)
}

// Bridge feeds events from a watermill subscription into a hub until ctx is
// done or the subscription closes.
func Bridge(ctx context.Context, sub message.Subscriber, topic string, hub *Hub) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for msg := range messages {
		var e notify.Event
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("message_uuid", msg.UUID).Warn("dropping malformed realtime message")
			msg.Ack()
			continue
		}
		hub.Deliver(ctx, e)
		msg.Ack()
	}
	return nil
}

// NewRedisStream builds the publisher and subscriber pair. The subscriber has
// no consumer group so each instance receives every message.
func NewRedisStream(rdb redis.UniversalClient, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}
	return pub, sub, nil
}

var _ notify.Sink = (*StreamSink)(nil)
