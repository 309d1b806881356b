package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes keyed messages; the hash balancer keeps one key on one
// partition so messages for a recipient stay ordered.
type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return newProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.write(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
}

func (p *Producer) PublishJSON(ctx context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal message for %s", topic)
	}
	return p.write(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   b,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	})
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "kafka publish to %s", msg.Topic)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
