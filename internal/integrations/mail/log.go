package mail

import (
	"context"

	"go.uber.org/zap"
)

var _ Transport = (*Log)(nil)

// Log only writes the message to the logger. Used in development.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, to, from, subject, body string) error {
	l.log.Info("mail",
		zap.String("to", to),
		zap.String("from", from),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}
