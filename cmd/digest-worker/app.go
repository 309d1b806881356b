package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/broker/kafka"
	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/notifystack"
	"github.com/BearBump/ReturnBox/internal/services/digest"
	"github.com/BearBump/ReturnBox/internal/services/digestrunner"
	"github.com/BearBump/ReturnBox/internal/services/notifier"
	"github.com/BearBump/ReturnBox/internal/storage/pgreturns"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	consumerRetries = 3
	consumerBackoff = 500 * time.Millisecond
)

type workerStore interface {
	notifystack.Store
	Ping(ctx context.Context) error
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (store workerStore, closeFn func(), err error)
	newBuffer   func(cfg *config.Config, key string, log *zap.Logger) (buf digest.Buffer, closeFn func())
	newConsumer func(cfg *config.Config, topic, group string, log *zap.Logger) kafkaConsumer
	newStack    func(cfg *config.Config, store notifystack.Store, log *zap.Logger) (*notifystack.Stack, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgreturns.New(cfg.Database.DSN())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newBuffer: func(cfg *config.Config, key string, log *zap.Logger) (digest.Buffer, func()) {
			b := rediscache.NewDigestBuffer(cfg.Redis.Addr(), key).WithLogger(log)
			return b, func() { _ = b.Close() }
		},
		newConsumer: func(cfg *config.Config, topic, group string, log *zap.Logger) kafkaConsumer {
			return kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group).
				WithRetry(consumerRetries, consumerBackoff).
				WithLogger(log)
		},
		newStack: notifystack.Build,
	}
}

// workerSettings are the effective worker values after defaults, as shown on /config.
type workerSettings struct {
	Topic                string               `json:"topic"`
	ConsumerGroup        string               `json:"consumerGroup"`
	FlushInterval        string               `json:"flushInterval"`
	DigestBufferKey      string               `json:"digestBufferKey"`
	DigestConcurrency    int                  `json:"digestConcurrency"`
	Notify               notifystack.Settings `json:"notify"`
	GlobalToggleDefaults map[string]bool      `json:"globalToggleDefaults"`
}

func RunDigestWorker(ctx context.Context, cfg *config.Config, opts workerHTTPOpts, f workerFactories, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	topic := cfg.Kafka.TrackingUpdatedTopicName
	if topic == "" {
		topic = "tracking.updated"
	}
	group := cfg.ReturnBox.KafkaConsumerGroup
	if group == "" {
		group = "digest-worker"
	}
	interval := time.Duration(cfg.ReturnBox.DigestFlushIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	bufferKey := cfg.ReturnBox.DigestBufferKey
	if bufferKey == "" {
		bufferKey = rediscache.DigestBufferKey
	}
	concurrency := cfg.Notify.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	if opts.httpAddr == "" {
		opts.httpAddr = cfg.ReturnBox.WorkerHTTPAddr
	}

	store, closeStore, err := f.newStorage(cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stack, err := f.newStack(cfg, store, log)
	if err != nil {
		return errors.Wrap(err, "notification pipeline")
	}
	defer stack.Close()

	buf, closeBuf := f.newBuffer(cfg, bufferKey, log.With(zap.String("component", "buffer")))
	if closeBuf != nil {
		defer closeBuf()
	}

	agg := digest.NewAggregator(buf, log.With(zap.String("component", "digest")))
	digests := digest.NewService(agg, stack.Dispatcher, stack.Notifier.Admins(), log.With(zap.String("component", "digest"))).
		WithConcurrency(concurrency)
	stack.Notifier.WithDigest(digests)

	runner := digestrunner.New(digests, log.With(zap.String("component", "digest-runner"))).
		WithSettings(interval, 0)

	consumer := f.newConsumer(cfg, topic, group, log.With(zap.String("component", "consumer")))
	defer func() { _ = consumer.Close() }()

	opts.runner = runner
	opts.pending = digests.Pending
	opts.checks = append(opts.checks, readinessCheck{name: "postgres", ping: store.Ping})
	opts.settings = workerSettings{
		Topic:                topic,
		ConsumerGroup:        group,
		FlushInterval:        interval.String(),
		DigestBufferKey:      bufferKey,
		DigestConcurrency:    concurrency,
		Notify:               stack.Settings,
		GlobalToggleDefaults: cfg.Notify.GlobalToggles,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		log.Info("kafka consumer started", zap.String("topic", topic), zap.String("group", group))
		return consumer.Consume(gctx, func(_key, value []byte) error {
			return handleTrackingMessage(gctx, stack.Notifier, value, log)
		})
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, opts, log)
	})

	log.Info("digest worker started", zap.Duration("flush_interval", interval), zap.String("buffer_key", bufferKey))
	return g.Wait()
}

type trackingNotifier interface {
	FromTrackingMessage(ctx context.Context, msg messages.TrackingUpdated) (models.TrackingUpdate, error)
	TrackingUpdated(ctx context.Context, u models.TrackingUpdate) ([]models.DispatchResult, error)
}

var _ trackingNotifier = (*notifier.Notifier)(nil)

// handleTrackingMessage turns one tracking.updated message into a digest row plus any
// immediate notifications. Only a failure to buffer the row stops the consumer, so the
// message is redelivered; unusable messages are committed and logged.
func handleTrackingMessage(ctx context.Context, n trackingNotifier, value []byte, log *zap.Logger) error {
	var msg messages.TrackingUpdated
	if err := json.Unmarshal(value, &msg); err != nil {
		log.Warn("skipping malformed tracking message", zap.Error(err))
		return nil
	}
	u, err := n.FromTrackingMessage(ctx, msg)
	switch {
	case errors.Is(err, notifier.ErrSkipMessage):
		return nil
	case models.IsNotFound(err):
		log.Warn("tracking message for unknown shipment or owner",
			zap.Uint64("tracking_id", msg.TrackingID),
			zap.Error(err))
		return nil
	case models.IsValidation(err):
		log.Warn("skipping invalid tracking message", zap.Uint64("tracking_id", msg.TrackingID), zap.Error(err))
		return nil
	case err != nil:
		return err
	}

	if _, err := n.TrackingUpdated(ctx, u); err != nil {
		if models.IsValidation(err) {
			log.Warn("tracking update rejected", zap.String("shipment_id", u.ShipmentID), zap.Error(err))
			return nil
		}
		return errors.Wrap(err, "buffer tracking update")
	}
	return nil
}
