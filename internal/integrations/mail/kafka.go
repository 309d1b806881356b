package mail

import (
	"context"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultOutboundTopic = "notifications.outbound"

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

var _ Transport = (*Kafka)(nil)

// Kafka hands the message to a relay over a topic. Success means the broker
// accepted it, not that it was delivered.
type Kafka struct {
	producer Publisher
	topic    string
}

func NewKafka(producer Publisher, topic string) *Kafka {
	if topic == "" {
		topic = defaultOutboundTopic
	}
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Send(ctx context.Context, to, from, subject, body string) error {
	msg := messages.OutboundEmail{
		ID:        uuid.NewString(),
		To:        to,
		From:      from,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	return errors.Wrap(k.producer.PublishJSON(ctx, k.topic, to, msg), "publish outbound email")
}
