package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ReturnBox/internal/metrics"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Transport interface {
	Send(ctx context.Context, to, from, subject, body string) error
}

type AuditLog interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

type Gate interface {
	IsCategoryEnabled(ctx context.Context, category models.Category) bool
}

type Resolver interface {
	ShouldSend(ctx context.Context, userID string, category models.Category, critical bool) bool
}

// Deduper remembers which (event, recipient) pairs were already sent.
// It is advisory: errors never block a send.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

var errNoAddress = errors.New("recipient has no email address")

type Coordinator struct {
	gate      Gate
	resolver  Resolver
	transport Transport
	audit     AuditLog
	dedupe    Deduper
	log       *zap.Logger

	from        string
	sendTimeout time.Duration
	dedupeTTL   time.Duration
	// concurrency caps in-flight sends per dispatch; 0 means one goroutine per recipient.
	concurrency int

	now func() time.Time
}

func New(gate Gate, resolver Resolver, transport Transport, audit AuditLog, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		gate:        gate,
		resolver:    resolver,
		transport:   transport,
		audit:       audit,
		log:         log,
		from:        "no-reply@returnbox.local",
		sendTimeout: 10 * time.Second,
		dedupeTTL:   10 * time.Minute,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) WithSettings(from string, sendTimeout time.Duration, concurrency int) *Coordinator {
	if from != "" {
		c.from = from
	}
	if sendTimeout > 0 {
		c.sendTimeout = sendTimeout
	}
	if concurrency > 0 {
		c.concurrency = concurrency
	}
	return c
}

func (c *Coordinator) WithDeduper(d Deduper, ttl time.Duration) *Coordinator {
	c.dedupe = d
	if ttl > 0 {
		c.dedupeTTL = ttl
	}
	return c
}

// Dispatch sends ev to every recipient concurrently and waits for all of them.
// Only an invalid event is returned as an error; delivery problems are in the result.
func (c *Coordinator) Dispatch(ctx context.Context, ev models.Event, recipients []models.Recipient) (models.DispatchResult, error) {
	if !ev.Category.Valid() {
		return models.DispatchResult{}, models.NewValidationError("category", "unknown category "+string(ev.Category))
	}
	if strings.TrimSpace(ev.Subject) == "" {
		return models.DispatchResult{}, models.NewValidationError("subject", "required")
	}

	// The gate is evaluated at most once per dispatch, and only if someone needs it.
	gateOpen := sync.OnceValue(func() bool {
		return c.gate == nil || c.gate.IsCategoryEnabled(ctx, ev.Category)
	})

	outcomes := make([]models.RecipientOutcome, len(recipients))
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, r := range recipients {
		g.Go(func() error {
			outcomes[i] = c.deliver(ctx, ev, r, gateOpen)
			return nil
		})
	}
	_ = g.Wait()

	res := models.DispatchResult{
		Category:  ev.Category,
		Aggregate: models.Aggregate(outcomes),
		Outcomes:  outcomes,
	}
	c.logResult(ev, res)
	metrics.RecordAggregate(string(ev.Category), string(res.Aggregate))
	return res, nil
}

func (c *Coordinator) deliver(ctx context.Context, ev models.Event, r models.Recipient, gateOpen func() bool) models.RecipientOutcome {
	out := models.RecipientOutcome{Recipient: r}

	if !r.AlwaysNotify {
		if !gateOpen() {
			return c.finish(ctx, ev, c.skip(out, models.SkipGlobalToggleDisabled))
		}
		if r.LookupErr != nil {
			out.Status = models.RecipientFailed
			out.Err = &models.DispatchError{Recipient: r.UserID, Err: errors.Wrap(r.LookupErr, "lookup recipient")}
			return c.finish(ctx, ev, out)
		}
		if r.UserID == "" || !c.resolver.ShouldSend(ctx, r.UserID, ev.Category, ev.Critical) {
			return c.finish(ctx, ev, c.skip(out, models.SkipPreferenceDisabled))
		}
	}

	if strings.TrimSpace(r.Email) == "" {
		out.Status = models.RecipientFailed
		out.Err = &models.DispatchError{Recipient: r.UserID, Err: errNoAddress}
		return c.finish(ctx, ev, out)
	}

	key := dedupeKey(ev, r)
	if key != "" && c.dedupe != nil {
		claimed, err := c.dedupe.Claim(ctx, key, c.dedupeTTL)
		switch {
		case err != nil:
			c.log.Warn("dedupe claim failed, sending anyway", zap.String("key", key), zap.Error(err))
		case !claimed:
			return c.finish(ctx, ev, c.skip(out, models.SkipDuplicate))
		}
	}

	start := time.Now()
	err := c.send(ctx, ev, r)
	out.Duration = time.Since(start)
	metrics.ObserveSend(string(ev.Category), out.Duration)

	if err != nil {
		out.Status = models.RecipientFailed
		out.Err = err
		if key != "" && c.dedupe != nil {
			// Let a retry reach this recipient again.
			if rerr := c.dedupe.Release(ctx, key); rerr != nil {
				c.log.Warn("dedupe release failed", zap.String("key", key), zap.Error(rerr))
			}
		}
	} else {
		out.Status = models.RecipientSent
	}
	return c.finish(ctx, ev, out)
}

// send makes one attempt bounded by sendTimeout, even when the transport ignores ctx.
func (c *Coordinator) send(ctx context.Context, ev models.Event, r models.Recipient) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.transport.Send(attemptCtx, r.Email, c.from, ev.Subject, ev.Body)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		return &models.DispatchError{
			Recipient: r.Email,
			Timeout:   errors.Is(err, context.DeadlineExceeded),
			Err:       err,
		}
	case <-attemptCtx.Done():
		return &models.DispatchError{
			Recipient: r.Email,
			Timeout:   errors.Is(attemptCtx.Err(), context.DeadlineExceeded),
			Err:       attemptCtx.Err(),
		}
	}
}

func (c *Coordinator) skip(out models.RecipientOutcome, reason models.SkipReason) models.RecipientOutcome {
	out.Status = models.RecipientSkipped
	out.SkipReason = reason
	return out
}

func (c *Coordinator) finish(ctx context.Context, ev models.Event, out models.RecipientOutcome) models.RecipientOutcome {
	status := string(out.Status)
	if out.Status == models.RecipientSkipped {
		status += ":" + string(out.SkipReason)
	}
	metrics.RecordRecipient(string(ev.Category), status)

	if c.audit == nil {
		return out
	}
	entry := models.AuditEntry{
		ID:         uuid.NewString(),
		Category:   ev.Category,
		Recipient:  out.Recipient.Email,
		UserID:     out.Recipient.UserID,
		Subject:    ev.Subject,
		Status:     out.Status,
		SkipReason: out.SkipReason,
		DedupeKey:  ev.DedupeKey,
		CreatedAt:  c.now(),
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	// The audit write must outlive a cancelled request.
	if err := c.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.log.Error("audit record failed",
			zap.String("category", string(ev.Category)),
			zap.String("recipient", entry.Recipient),
			zap.Error(err))
	}
	return out
}

func (c *Coordinator) logResult(ev models.Event, res models.DispatchResult) {
	fields := []zap.Field{
		zap.String("category", string(ev.Category)),
		zap.String("outcome", string(res.Aggregate)),
		zap.String("dedupe_key", ev.DedupeKey),
		zap.Int("sent", res.Count(models.RecipientSent)),
		zap.Int("failed", res.Count(models.RecipientFailed)),
		zap.Int("skipped", res.Count(models.RecipientSkipped)),
	}
	switch res.Aggregate {
	case models.OutcomeTotalFailure:
		c.log.Error("notification dispatch failed for every recipient", fields...)
	case models.OutcomePartialFailure:
		c.log.Warn("notification dispatch partially failed", fields...)
	case models.OutcomeSkipped:
		c.log.Debug("notification dispatch skipped", fields...)
	default:
		c.log.Info("notification dispatched", fields...)
	}
}

func dedupeKey(ev models.Event, r models.Recipient) string {
	if ev.DedupeKey == "" {
		return ""
	}
	return "notify:dedupe:" + ev.DedupeKey + ":" + strings.ToLower(strings.TrimSpace(r.Email))
}
