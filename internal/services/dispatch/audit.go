package dispatch

import (
	"context"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type LogAudit struct {
	log *zap.Logger
}

func NewLogAudit(log *zap.Logger) *LogAudit {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogAudit{log: log}
}

func (a *LogAudit) Record(_ context.Context, e models.AuditEntry) error {
	fields := []zap.Field{
		zap.String("audit_id", e.ID),
		zap.String("category", string(e.Category)),
		zap.String("recipient", e.Recipient),
		zap.String("status", string(e.Status)),
	}
	if e.SkipReason != "" {
		fields = append(fields, zap.String("skip_reason", string(e.SkipReason)))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	if e.DedupeKey != "" {
		fields = append(fields, zap.String("dedupe_key", e.DedupeKey))
	}
	a.log.Info("notification", fields...)
	return nil
}

// MultiAudit records to every sink and reports the first error.
type MultiAudit []AuditLog

func (m MultiAudit) Record(ctx context.Context, e models.AuditEntry) error {
	var first error
	for _, sink := range m {
		if err := sink.Record(ctx, e); err != nil && first == nil {
			first = errors.Wrap(err, "audit sink")
		}
	}
	return first
}
