// Package notifystack assembles the notification pipeline shared by both binaries:
// toggle gate, preference resolver, dedupe, mail transport, audit and dispatcher.
package notifystack

import (
	"context"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/broker/kafka"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/integrations/mail"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/dispatch"
	"github.com/BearBump/ReturnBox/internal/services/notifier"
	"github.com/BearBump/ReturnBox/internal/services/preferences"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultFrom               = "no-reply@returnbox.local"
	defaultOutboundTopic      = "notifications.outbound"
	defaultSendTimeout        = 10 * time.Second
	defaultDedupeWindow       = 10 * time.Minute
	defaultRateLimitPerMinute = 30
)

// Store is the persistent side the pipeline reads users from and writes the audit log to.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetShipmentByTrackingID(ctx context.Context, trackingID uint64) (*models.Shipment, error)
	Record(ctx context.Context, e models.AuditEntry) error
}

type Stack struct {
	Gate       *preferences.Gate
	Resolver   *preferences.Resolver
	Toggles    *rediscache.Toggles
	Dispatcher *dispatch.Coordinator
	Notifier   *notifier.Notifier
	Mail       *mail.Router
	Settings   Settings

	closers []func() error
}

// Settings are the effective values after defaults were applied.
type Settings struct {
	From               string        `json:"from"`
	Provider           string        `json:"mailProvider"`
	SendTimeout        time.Duration `json:"sendTimeout"`
	DedupeWindow       time.Duration `json:"dedupeWindow"`
	MaxConcurrency     int           `json:"maxConcurrency"`
	RateLimitPerMinute int64         `json:"rateLimitPerMinute"`
	AdminRecipients    int           `json:"adminRecipients"`
}

func Build(cfg *config.Config, store Store, log *zap.Logger) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}
	n := cfg.Notify

	defaults, err := n.Toggles()
	if err != nil {
		return nil, err
	}

	s := Settings{
		From:               n.From,
		Provider:           n.MailProvider,
		SendTimeout:        time.Duration(n.SendTimeoutMS) * time.Millisecond,
		DedupeWindow:       time.Duration(n.DedupeWindowSeconds) * time.Second,
		MaxConcurrency:     n.MaxConcurrency,
		RateLimitPerMinute: int64(n.RateLimitPerMinute),
		AdminRecipients:    len(n.AdminRecipients),
	}
	if s.From == "" {
		s.From = defaultFrom
	}
	if s.Provider == "" {
		s.Provider = mail.ProviderLog
	}
	if s.SendTimeout <= 0 {
		s.SendTimeout = defaultSendTimeout
	}
	if s.DedupeWindow <= 0 {
		s.DedupeWindow = defaultDedupeWindow
	}
	if s.MaxConcurrency < 0 {
		s.MaxConcurrency = 0
	}
	if s.RateLimitPerMinute <= 0 {
		s.RateLimitPerMinute = defaultRateLimitPerMinute
	}

	st := &Stack{Settings: s}
	redisAddr := cfg.Redis.Addr()

	topic := cfg.Kafka.OutboundEmailTopicName
	if topic == "" {
		topic = defaultOutboundTopic
	}
	var producer mail.Publisher
	if s.Provider == mail.ProviderKafka {
		kp := kafka.NewProducer(cfg.Kafka.Brokers())
		st.closers = append(st.closers, kp.Close)
		producer = kp
	}
	router, err := mail.NewRouter(mail.Settings{
		Provider:     s.Provider,
		SMTPHost:     n.SMTPHost,
		SMTPPort:     n.SMTPPort,
		SMTPUsername: n.SMTPUsername,
		SMTPPassword: n.SMTPPassword,
		BrevoAPIKey:  n.BrevoAPIKey,
		BrevoSender:  n.BrevoSender,
		KafkaTopic:   topic,
	}, producer, log.With(zap.String("component", "mail")))
	if err != nil {
		return nil, errors.Wrap(err, "mail transport")
	}
	st.Mail = router

	rl := rediscache.NewRateLimiter(redisAddr)
	st.closers = append(st.closers, rl.Close)
	transport := mail.NewRateLimited(router, rl, s.RateLimitPerMinute)

	st.Toggles = rediscache.NewToggles(redisAddr)
	st.closers = append(st.closers, st.Toggles.Close)
	st.Gate = preferences.NewGate(preferences.StaticToggles(defaults), st.Toggles, log.With(zap.String("component", "gate")))
	st.Resolver = preferences.NewResolver(store, log.With(zap.String("component", "preferences")))

	deduper := rediscache.NewDeduper(redisAddr)
	st.closers = append(st.closers, deduper.Close)

	audit := dispatch.MultiAudit{store, dispatch.NewLogAudit(log.With(zap.String("component", "audit")))}
	st.Dispatcher = dispatch.New(st.Gate, st.Resolver, transport, audit, log.With(zap.String("component", "dispatch"))).
		WithSettings(s.From, s.SendTimeout, s.MaxConcurrency).
		WithDeduper(deduper, s.DedupeWindow)

	st.Notifier = notifier.New(store, st.Dispatcher, n.AdminRecipients, log.With(zap.String("component", "notifier"))).
		WithShipments(store)

	log.Info("notification pipeline ready",
		zap.String("mail_provider", router.Provider()),
		zap.Duration("send_timeout", s.SendTimeout),
		zap.Duration("dedupe_window", s.DedupeWindow),
		zap.Int("max_concurrency", s.MaxConcurrency),
		zap.Int("admin_recipients", s.AdminRecipients))
	return st, nil
}

func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	s.closers = nil
}
