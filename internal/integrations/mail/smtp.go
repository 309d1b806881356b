package mail

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
)

var _ Transport = (*SMTP)(nil)

type SMTP struct {
	host     string
	port     int
	username string
	password string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(s Settings) *SMTP {
	port := s.SMTPPort
	if port <= 0 {
		port = 587
	}
	return &SMTP{
		host:     s.SMTPHost,
		port:     port,
		username: s.SMTPUsername,
		password: s.SMTPPassword,
		sendMail: smtp.SendMail,
	}
}

// Send does not observe ctx once the SMTP dialogue started; callers bound it with their own timeout.
func (s *SMTP) Send(ctx context.Context, to, from, subject, body string) error {
	if s.host == "" {
		return errors.New("smtp not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(from, "\r\n") {
		return errors.New("smtp: line break in address")
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", from, to, headerValue(subject), body))
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	return errors.Wrap(s.sendMail(addr, auth, from, []string{to}, msg), "smtp send")
}

// headerValue folds line breaks into spaces and Q-encodes anything non-ASCII.
func headerValue(v string) string {
	v = strings.Join(strings.FieldsFunc(v, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
	return mime.QEncoding.Encode("utf-8", v)
}
