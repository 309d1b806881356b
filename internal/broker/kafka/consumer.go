package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and commits a message only after
// its handler succeeds. A handler error is retried in place; when retries run
// out Consume returns and the uncommitted message is redelivered on restart.
type Consumer struct {
	r       messageReader
	log     *zap.Logger
	retries int
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           time.Second,
		StartOffset:       kafka.FirstOffset,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg))
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, log: zap.NewNop()}
}

// WithRetry retries a failing handler up to retries more times, waiting
// backoff, then 2*backoff, and so on between attempts.
func (c *Consumer) WithRetry(retries int, backoff time.Duration) *Consumer {
	if retries < 0 {
		retries = 0
	}
	c.retries = retries
	c.backoff = backoff
	return c
}

func (c *Consumer) WithLogger(log *zap.Logger) *Consumer {
	if log != nil {
		c.log = log
	}
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, msg, handler); err != nil {
			return errors.Wrapf(err, "handle %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(key, value []byte) error) error {
	wait := c.backoff
	for attempt := 0; ; attempt++ {
		err := handler(msg.Key, msg.Value)
		if err == nil || attempt >= c.retries {
			return err
		}
		c.log.Warn("message handler failed, retrying",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait *= 2
	}
}
