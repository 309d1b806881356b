package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captureTransport struct {
	called                 int
	lastTo, lastSub, lastB string
	err                    error
}

func (c *captureTransport) Send(_ context.Context, to, _, subject, body string) error {
	c.called++
	c.lastTo, c.lastSub, c.lastB = to, subject, body
	return c.err
}

type capturePublisher struct {
	topic string
	key   string
	value []byte
	err   error
}

func (p *capturePublisher) PublishJSON(_ context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.topic, p.key, p.value = topic, key, b
	return p.err
}

func TestRouter_SelectsProvider(t *testing.T) {
	for _, provider := range []string{ProviderSMTP, ProviderBrevo, ProviderKafka, ProviderLog} {
		t.Run(provider, func(t *testing.T) {
			r, err := NewRouter(Settings{Provider: provider}, &capturePublisher{}, nil)
			require.NoError(t, err)
			caps := map[string]*captureTransport{
				ProviderSMTP: {}, ProviderBrevo: {}, ProviderKafka: {}, ProviderLog: {},
			}
			r.smtp, r.brevo, r.kafka, r.log = caps[ProviderSMTP], caps[ProviderBrevo], caps[ProviderKafka], caps[ProviderLog]

			require.NoError(t, r.Send(context.Background(), "a@b.com", "ops@x.com", "sub", "body"))
			for name, c := range caps {
				if name == provider {
					require.Equal(t, 1, c.called)
				} else {
					require.Zero(t, c.called, name)
				}
			}
		})
	}
}

func TestRouter_Validation(t *testing.T) {
	r, err := NewRouter(Settings{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, ProviderLog, r.Provider())

	_, err = NewRouter(Settings{Provider: "kafka"}, nil, nil)
	require.Error(t, err)

	_, err = NewRouter(Settings{Provider: "carrier-pigeon"}, nil, nil)
	require.Error(t, err)
}

func TestSMTP_Send(t *testing.T) {
	s := NewSMTP(Settings{SMTPHost: "mail.local", SMTPUsername: "u", SMTPPassword: "p"})
	var gotAddr string
	var gotMsg []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		require.NotNil(t, a)
		require.Equal(t, []string{"a@b.com"}, to)
		return nil
	}
	require.NoError(t, s.Send(context.Background(), "a@b.com", "ops@x.com", "Hello", "Body"))
	require.Equal(t, "mail.local:587", gotAddr)
	require.Contains(t, string(gotMsg), "Subject: Hello\r\n")

	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421") }
	require.Error(t, s.Send(context.Background(), "a@b.com", "ops@x.com", "Hello", "Body"))

	require.Error(t, NewSMTP(Settings{}).Send(context.Background(), "a@b.com", "f", "s", "b"))
}

func TestSMTP_SendHeaderSafety(t *testing.T) {
	s := NewSMTP(Settings{SMTPHost: "mail.local"})
	var gotMsg []byte
	s.sendMail = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "a@b.com", "ops@x.com",
		"New return request for order X\r\nBcc: attacker@evil.test", "Body"))
	head, _, ok := strings.Cut(string(gotMsg), "\r\n\r\n")
	require.True(t, ok)
	require.Contains(t, head, "Subject: New return request for order X Bcc: attacker@evil.test\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		require.False(t, strings.HasPrefix(line, "Bcc:"), line)
	}

	require.NoError(t, s.Send(context.Background(), "a@b.com", "ops@x.com", "Возврат принят", "Body"))
	require.Contains(t, string(gotMsg), "Subject: =?utf-8?q?")

	gotMsg = nil
	require.Error(t, s.Send(context.Background(), "a@b.com\r\nBcc: x@evil.test", "ops@x.com", "s", "b"))
	require.Error(t, s.Send(context.Background(), "a@b.com", "ops@x.com\nX: y", "s", "b"))
	require.Nil(t, gotMsg)
}

func TestBrevo_Send(t *testing.T) {
	var got brevoEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.Header.Get("api-key"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		if got.To[0]["email"] == "bounce@b.com" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := NewBrevo(Settings{BrevoAPIKey: "key", BrevoURL: srv.URL})
	require.NoError(t, b.Send(context.Background(), "a@b.com", "ops@x.com", "sub", "body"))
	require.Equal(t, "ops@x.com", got.Sender["email"])
	require.Equal(t, "body", got.TextContent)

	require.Error(t, b.Send(context.Background(), "bounce@b.com", "ops@x.com", "sub", "body"))
	require.Error(t, NewBrevo(Settings{}).Send(context.Background(), "a@b.com", "", "s", "b"))
}

func TestKafka_Send(t *testing.T) {
	p := &capturePublisher{}
	k := NewKafka(p, "")
	require.NoError(t, k.Send(context.Background(), "a@b.com", "ops@x.com", "sub", "body"))
	require.Equal(t, defaultOutboundTopic, p.topic)
	require.Equal(t, "a@b.com", p.key)

	var msg messages.OutboundEmail
	require.NoError(t, json.Unmarshal(p.value, &msg))
	require.NotEmpty(t, msg.ID)
	require.Equal(t, "sub", msg.Subject)

	p.err = errors.New("broker down")
	require.Error(t, k.Send(context.Background(), "a@b.com", "ops@x.com", "sub", "body"))
}

func TestLog_Send(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).Send(context.Background(), "a@b.com", "f", "sub", "body"))
	require.Equal(t, 1, logs.FilterMessage("mail").Len())
}

func TestRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	next := &captureTransport{}
	rl := NewRateLimited(next, rediscache.NewRateLimiter(mr.Addr()), 2)
	ctx := context.Background()

	require.NoError(t, rl.Send(ctx, "a@b.com", "f", "s", "b"))
	require.NoError(t, rl.Send(ctx, " A@b.com", "f", "s", "b"))
	err := rl.Send(ctx, "a@b.com", "f", "s", "b")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Contains(t, err.Error(), "retry in")
	require.NoError(t, rl.Send(ctx, "other@b.com", "f", "s", "b"))
	require.Equal(t, 3, next.called)

	mr.FastForward(61 * time.Second)
	require.NoError(t, rl.Send(ctx, "a@b.com", "f", "s", "b"))
	require.Equal(t, 4, next.called)
}
