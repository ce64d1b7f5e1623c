package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-feed-curator/pkg/errs"
	"ai-feed-curator/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Topic names. Observer topics are per-target, see ObserverTopic.
const (
	TopicInbound = "curation.inbound"
	TopicUI      = "curation.ui"
)

const (
	metaType        = "event_type"
	metaReplyTo     = "reply_to"
	metaCorrelation = "correlation_id"
)

// ObserverTopic returns the directive topic for one feed-observer instance.
func ObserverTopic(target string) string {
	return "observer." + target
}

// PingTopic returns the liveness-probe topic for one feed-observer instance.
func PingTopic(target string) string {
	return ObserverTopic(target) + ".ping"
}

// Bus wraps an in-process gochannel pub/sub. All cross-context communication
// runs through it; there is no shared memory between the observer, inference
// and UI loops.
type Bus struct {
	pubSub *gochannel.GoChannel
}

func New(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		logger,
	)
	return &Bus{pubSub: pubSub}
}

type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publish sends an event to a topic. Fire-and-forget: delivery to topics with
// no subscriber is silently dropped, matching cross-context send semantics.
func (b *Bus) Publish(topic string, evt events.Event) error {
	msg, err := encode(evt)
	if err != nil {
		return err
	}
	return b.pubSub.Publish(topic, msg)
}

// Subscribe returns the raw message stream for a topic. Messages are delivered
// in publish order per topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, topic)
}

// Request publishes an event and waits for a correlated reply, bounded by the
// context deadline. It is the typed replacement for callback-style response
// channels: the responder must echo the correlation id onto the reply topic.
func (b *Bus) Request(ctx context.Context, topic string, evt events.Event) (events.BaseEvent, error) {
	corrID := uuid.NewString()
	replyTopic := topic + ".reply." + corrID

	replies, err := b.pubSub.Subscribe(ctx, replyTopic)
	if err != nil {
		return events.BaseEvent{}, fmt.Errorf("subscribe reply topic: %w", err)
	}

	msg, err := encode(evt)
	if err != nil {
		return events.BaseEvent{}, err
	}
	msg.Metadata.Set(metaReplyTo, replyTopic)
	msg.Metadata.Set(metaCorrelation, corrID)

	if err := b.pubSub.Publish(topic, msg); err != nil {
		return events.BaseEvent{}, fmt.Errorf("publish request: %w", err)
	}

	select {
	case reply, ok := <-replies:
		if !ok {
			return events.BaseEvent{}, fmt.Errorf("%w: reply channel closed", errs.ErrDelivery)
		}
		reply.Ack()
		return Decode(reply)
	case <-ctx.Done():
		return events.BaseEvent{}, fmt.Errorf("%w: no reply on %s", errs.ErrTimeout, topic)
	}
}

// Respond answers a request message received from Subscribe. It is a no-op for
// messages that were not sent via Request.
func (b *Bus) Respond(req *message.Message, evt events.Event) error {
	replyTopic := req.Metadata.Get(metaReplyTo)
	if replyTopic == "" {
		return nil
	}
	msg, err := encode(evt)
	if err != nil {
		return err
	}
	msg.Metadata.Set(metaCorrelation, req.Metadata.Get(metaCorrelation))
	return b.pubSub.Publish(replyTopic, msg)
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

func encode(evt events.Event) (*message.Message, error) {
	payload, err := json.Marshal(envelope{
		Type:       evt.EventType(),
		Data:       evt.Payload(),
		OccurredAt: evt.Timestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", evt.EventType(), err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaType, evt.EventType())
	return msg, nil
}

// Decode reconstructs the event carried by a bus message.
func Decode(msg *message.Message) (events.BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return events.BaseEvent{}, fmt.Errorf("%w: malformed event payload: %v", errs.ErrInvalidInput, err)
	}
	if env.Data == nil {
		env.Data = make(map[string]interface{})
	}
	return events.BaseEvent{
		Type:       env.Type,
		Data:       env.Data,
		OccurredAt: env.OccurredAt,
	}, nil
}
