package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultBrevoURL = "https://api.brevo.com/v3/smtp/email"

var _ Transport = (*Brevo)(nil)

type Brevo struct {
	apiKey string
	sender string
	url    string
	http   *http.Client
}

func NewBrevo(s Settings) *Brevo {
	url := s.BrevoURL
	if url == "" {
		url = defaultBrevoURL
	}
	return &Brevo{apiKey: s.BrevoAPIKey, sender: s.BrevoSender, url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

type brevoEmail struct {
	To          []map[string]string `json:"to"`
	Sender      map[string]string   `json:"sender"`
	Subject     string              `json:"subject"`
	TextContent string              `json:"textContent"`
}

// Send uses the configured Brevo sender when one is set, otherwise from.
func (b *Brevo) Send(ctx context.Context, to, from, subject, body string) error {
	sender := b.sender
	if sender == "" {
		sender = from
	}
	if b.apiKey == "" || sender == "" {
		return errors.New("brevo not configured")
	}
	payload := brevoEmail{
		To:          []map[string]string{{"email": to}},
		Sender:      map[string]string{"email": sender},
		Subject:     subject,
		TextContent: body,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal brevo email")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(buf))
	if err != nil {
		return errors.Wrap(err, "brevo request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.apiKey)
	resp, err := b.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "brevo send")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return errors.Errorf("brevo send failed: %s", resp.Status)
	}
	return nil
}
