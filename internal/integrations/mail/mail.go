// Package mail implements the outbound mail transports and picks one by provider name.
package mail

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Transport sends one message to one recipient. One attempt per call, no retries.
type Transport interface {
	Send(ctx context.Context, to, from, subject, body string) error
}

const (
	ProviderSMTP  = "smtp"
	ProviderBrevo = "brevo"
	ProviderKafka = "kafka"
	ProviderLog   = "log"
)

type Settings struct {
	Provider string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	BrevoAPIKey string
	BrevoSender string
	BrevoURL    string

	KafkaTopic string
}

var _ Transport = (*Router)(nil)

type Router struct {
	provider string
	smtp     Transport
	brevo    Transport
	kafka    Transport
	log      Transport
}

// NewRouter builds every transport the settings allow. producer may be nil
// unless the kafka provider is selected.
func NewRouter(s Settings, producer Publisher, log *zap.Logger) (*Router, error) {
	r := &Router{
		provider: strings.ToLower(strings.TrimSpace(s.Provider)),
		smtp:     NewSMTP(s),
		brevo:    NewBrevo(s),
		log:      NewLog(log),
	}
	if r.provider == "" {
		r.provider = ProviderLog
	}
	if producer != nil {
		r.kafka = NewKafka(producer, s.KafkaTopic)
	}

	switch r.provider {
	case ProviderSMTP, ProviderBrevo, ProviderLog:
	case ProviderKafka:
		if r.kafka == nil {
			return nil, errors.New("mail provider kafka needs a producer")
		}
	default:
		return nil, errors.Errorf("unknown mail provider %q", s.Provider)
	}
	return r, nil
}

func (r *Router) Provider() string { return r.provider }

func (r *Router) Send(ctx context.Context, to, from, subject, body string) error {
	switch r.provider {
	case ProviderSMTP:
		return r.smtp.Send(ctx, to, from, subject, body)
	case ProviderBrevo:
		return r.brevo.Send(ctx, to, from, subject, body)
	case ProviderKafka:
		return r.kafka.Send(ctx, to, from, subject, body)
	default:
		return r.log.Send(ctx, to, from, subject, body)
	}
}
