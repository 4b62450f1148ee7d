package events

import (
	"context"
	"encoding/json"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
)

// Publisher hands envelopes to the event bus. Implementations must not block
// on broker round trips.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type KafkaPublisher struct {
	Producer *kafkax.Producer
}

func (p KafkaPublisher) Publish(_ context.Context, topic string, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.Producer.Publish(topic, PartitionKey(env.CorrelationID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Envelope) error { return nil }
