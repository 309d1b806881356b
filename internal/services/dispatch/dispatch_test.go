package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeTransport struct {
	mu    sync.Mutex
	fail  map[string]error
	delay map[string]time.Duration
	sent  []string
	calls atomic.Int32
}

func (t *fakeTransport) Send(ctx context.Context, to, _, _, _ string) error {
	t.calls.Add(1)
	t.mu.Lock()
	d := t.delay[to]
	err := t.fail[to]
	t.mu.Unlock()
	if d > 0 {
		// Deliberately ignores ctx.
		time.Sleep(d)
	}
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sent = append(t.sent, to)
	t.mu.Unlock()
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *memAudit) Record(_ context.Context, e models.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) all() []models.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

type fakeGate struct {
	disabled map[models.Category]bool
	calls    atomic.Int32
}

func (g *fakeGate) IsCategoryEnabled(_ context.Context, c models.Category) bool {
	g.calls.Add(1)
	return !g.disabled[c]
}

type fakeResolver struct {
	deny  map[string]bool
	calls atomic.Int32
}

func (r *fakeResolver) ShouldSend(_ context.Context, userID string, _ models.Category, _ bool) bool {
	r.calls.Add(1)
	return !r.deny[userID]
}

type DispatchSuite struct {
	suite.Suite

	transport *fakeTransport
	audit     *memAudit
	gate      *fakeGate
	resolver  *fakeResolver
	logs      *observer.ObservedLogs
	c         *Coordinator
}

func (s *DispatchSuite) SetupTest() {
	s.transport = &fakeTransport{fail: map[string]error{}, delay: map[string]time.Duration{}}
	s.audit = &memAudit{}
	s.gate = &fakeGate{disabled: map[models.Category]bool{}}
	s.resolver = &fakeResolver{deny: map[string]bool{}}

	core, logs := observer.New(zapcore.DebugLevel)
	s.logs = logs
	s.c = New(s.gate, s.resolver, s.transport, s.audit, zap.New(core)).
		WithSettings("ops@returnbox.test", 200*time.Millisecond, 0)
}

func event() models.Event {
	return models.Event{
		Category:  models.CategoryRefundReturn,
		Subject:   "Return updated",
		Body:      "status RECEIVED",
		DedupeKey: "return:r1:status:RECEIVED",
	}
}

func users(n int) []models.Recipient {
	out := make([]models.Recipient, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		out = append(out, models.Recipient{UserID: id, Email: id + "@example.com"})
	}
	return out
}

func (s *DispatchSuite) TestAggregateByFailureCount() {
	const n = 4
	for k := 0; k <= n; k++ {
		s.SetupTest()
		rs := users(n)
		for i := 0; i < k; i++ {
			s.transport.fail[rs[i].Email] = errors.New("smtp 550")
		}
		ev := event()
		ev.DedupeKey = ""

		res, err := s.c.Dispatch(context.Background(), ev, rs)
		s.Require().NoError(err)

		switch k {
		case 0:
			s.Require().Equal(models.OutcomeAllSuccess, res.Aggregate)
		case n:
			s.Require().Equal(models.OutcomeTotalFailure, res.Aggregate)
			s.Require().False(res.Delivered())
		default:
			s.Require().Equal(models.OutcomePartialFailure, res.Aggregate)
			s.Require().True(res.Delivered())
		}
		// No short-circuit: every recipient got an attempt.
		s.Require().Equal(int32(n), s.transport.calls.Load())
		s.Require().Equal(k, res.Count(models.RecipientFailed))
		s.Require().Len(s.audit.all(), n)
	}
}

func (s *DispatchSuite) TestOutcomesKeepRecipientOrder() {
	rs := users(3)
	s.transport.fail[rs[1].Email] = errors.New("mailbox full")

	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Len(res.Outcomes, 3)
	for i, o := range res.Outcomes {
		s.Require().Equal(rs[i], o.Recipient)
	}
	s.Require().Equal(models.RecipientFailed, res.Outcomes[1].Status)

	var de *models.DispatchError
	s.Require().ErrorAs(res.Outcomes[1].Err, &de)
	s.Require().False(de.Timeout)
}

func (s *DispatchSuite) TestSlowRecipientTimesOut() {
	rs := users(2)
	s.transport.delay[rs[0].Email] = 2 * time.Second

	start := time.Now()
	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Less(time.Since(start), time.Second)

	s.Require().Equal(models.OutcomePartialFailure, res.Aggregate)
	var de *models.DispatchError
	s.Require().ErrorAs(res.Outcomes[0].Err, &de)
	s.Require().True(de.Timeout)
	s.Require().Equal(models.RecipientSent, res.Outcomes[1].Status)
}

func (s *DispatchSuite) TestSendsRunConcurrently() {
	rs := users(5)
	for _, r := range rs {
		s.transport.delay[r.Email] = 100 * time.Millisecond
	}

	start := time.Now()
	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeAllSuccess, res.Aggregate)
	s.Require().Less(time.Since(start), 400*time.Millisecond)
}

func (s *DispatchSuite) TestGlobalToggleSkipsBeforePreferences() {
	s.gate.disabled[models.CategoryRefundReturn] = true
	rs := users(1)

	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeSkipped, res.Aggregate)
	s.Require().True(res.Delivered())
	s.Require().Zero(s.resolver.calls.Load())
	s.Require().Zero(s.transport.calls.Load())

	entries := s.audit.all()
	s.Require().Len(entries, 1)
	s.Require().Equal(models.RecipientSkipped, entries[0].Status)
	s.Require().Equal(models.SkipGlobalToggleDisabled, entries[0].SkipReason)
}

func (s *DispatchSuite) TestGateEvaluatedOncePerDispatch() {
	_, err := s.c.Dispatch(context.Background(), event(), users(4))
	s.Require().NoError(err)
	s.Require().Equal(int32(1), s.gate.calls.Load())
}

func (s *DispatchSuite) TestPreferenceDisabled() {
	rs := users(2)
	s.resolver.deny[rs[0].UserID] = true

	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeAllSuccess, res.Aggregate)
	s.Require().Equal(models.SkipPreferenceDisabled, res.Outcomes[0].SkipReason)
	s.Require().Equal([]string{rs[1].Email}, s.transport.sent)
}

func (s *DispatchSuite) TestAlwaysNotifyBypassesGateAndPreferences() {
	s.gate.disabled[models.CategoryAdmin] = true
	ev := event()
	ev.Category = models.CategoryAdmin
	ops := models.Recipient{Email: "ops@example.com", AlwaysNotify: true}
	seller := models.Recipient{UserID: "s1", Email: "s1@example.com"}

	res, err := s.c.Dispatch(context.Background(), ev, []models.Recipient{ops, seller})
	s.Require().NoError(err)
	s.Require().Equal(models.RecipientSent, res.Outcomes[0].Status)
	s.Require().Equal(models.SkipGlobalToggleDisabled, res.Outcomes[1].SkipReason)
	s.Require().Zero(s.resolver.calls.Load())
}

func (s *DispatchSuite) TestMissingEmailIsFailure() {
	res, err := s.c.Dispatch(context.Background(), event(), []models.Recipient{{UserID: "u1"}})
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeTotalFailure, res.Aggregate)
	s.Require().Zero(s.transport.calls.Load())
}

func (s *DispatchSuite) TestLookupErrorIsFailureNotPreference() {
	s.resolver.deny["u1"] = true
	rs := []models.Recipient{{UserID: "u1", LookupErr: errors.New("db down")}}

	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeTotalFailure, res.Aggregate)
	s.Require().Equal(models.RecipientFailed, res.Outcomes[0].Status)
	s.Require().Empty(res.Outcomes[0].SkipReason)
	s.Require().Zero(s.resolver.calls.Load())

	entries := s.audit.all()
	s.Require().Len(entries, 1)
	s.Require().Equal(models.RecipientFailed, entries[0].Status)
	s.Require().Contains(entries[0].Error, "lookup recipient: db down")
}

func (s *DispatchSuite) TestDedupeSkipsRetriedEvent() {
	s.c.WithDeduper(NewMemoryDeduper(), time.Minute)
	rs := users(2)

	_, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)

	s.Require().Equal(models.OutcomeSkipped, res.Aggregate)
	for _, o := range res.Outcomes {
		s.Require().Equal(models.SkipDuplicate, o.SkipReason)
	}
	s.Require().Equal(int32(2), s.transport.calls.Load())
}

func (s *DispatchSuite) TestDedupeReleasedOnFailure() {
	s.c.WithDeduper(NewMemoryDeduper(), time.Minute)
	rs := users(1)
	s.transport.fail[rs[0].Email] = errors.New("connection reset")

	res, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeTotalFailure, res.Aggregate)

	delete(s.transport.fail, rs[0].Email)
	res, err = s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeAllSuccess, res.Aggregate)
}

func (s *DispatchSuite) TestInvalidCategory() {
	ev := event()
	ev.Category = "sms"
	_, err := s.c.Dispatch(context.Background(), ev, users(1))
	s.Require().True(models.IsValidation(err))
	s.Require().Zero(s.transport.calls.Load())
	s.Require().Empty(s.audit.all())
}

func (s *DispatchSuite) TestNoRecipients() {
	res, err := s.c.Dispatch(context.Background(), event(), nil)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomeSkipped, res.Aggregate)
	s.Require().Empty(s.audit.all())
}

func (s *DispatchSuite) TestPartialFailureLoggedAtWarn() {
	rs := users(2)
	s.transport.fail[rs[0].Email] = errors.New("boom")

	_, err := s.c.Dispatch(context.Background(), event(), rs)
	s.Require().NoError(err)

	entries := s.logs.FilterMessage("notification dispatch partially failed").All()
	s.Require().Len(entries, 1)
	s.Require().Equal(zapcore.WarnLevel, entries[0].Level)
}

func TestDispatchSuite(t *testing.T) {
	suite.Run(t, new(DispatchSuite))
}

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := d.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = d.Claim(ctx, "k", time.Minute)
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = d.Claim(ctx, "k", time.Minute)
	require.True(t, ok)

	require.NoError(t, d.Release(ctx, "k"))
	ok, _ = d.Claim(ctx, "k", time.Minute)
	require.True(t, ok)
}
