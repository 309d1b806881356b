package digest

import (
	"context"
	"sort"
	"sync"

	"github.com/BearBump/ReturnBox/internal/metrics"
	"github.com/BearBump/ReturnBox/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.Event, recipients []models.Recipient) (models.DispatchResult, error)
}

type FlushSummary struct {
	WindowID string `json:"windowId"`
	Rows     int    `json:"rows"`
	Reports  int    `json:"reports"`

	// Dropped counts reports whose dispatch failed outright; their rows are not retried.
	Dropped  int                                `json:"dropped"`
	Outcomes map[string]models.AggregateOutcome `json:"outcomes,omitempty"`
}

type Service struct {
	agg         *Aggregator
	dispatcher  Dispatcher
	admins      []models.Recipient
	concurrency int
	log         *zap.Logger
}

func NewService(agg *Aggregator, dispatcher Dispatcher, admins []models.Recipient, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{agg: agg, dispatcher: dispatcher, admins: admins, concurrency: 8, log: log}
}

func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

func (s *Service) Enqueue(ctx context.Context, u models.TrackingUpdate) error {
	return s.agg.Enqueue(ctx, u)
}

func (s *Service) Pending(ctx context.Context) (int, error) {
	return s.agg.Pending(ctx)
}

// FlushAndDispatch sends at most once per report. Digests carry no dedupe key:
// a window id may be flushed more than once (manual trigger) with different rows. The buffer is already cleared
// when dispatch starts, so a failed report is logged and dropped.
func (s *Service) FlushAndDispatch(ctx context.Context, windowID string) (FlushSummary, error) {
	d, err := s.agg.Flush(ctx, windowID)
	if err != nil {
		metrics.RecordDigestFlush("error", 0)
		return FlushSummary{WindowID: windowID}, err
	}
	sum := FlushSummary{WindowID: windowID, Outcomes: map[string]models.AggregateOutcome{}}
	if d.Empty() {
		metrics.RecordDigestFlush("empty", 0)
		return sum, nil
	}
	sum.Rows = d.Rows()

	type job struct {
		key        string
		report     models.Report
		recipients []models.Recipient
	}
	userIDs := make([]string, 0, len(d.PerUser))
	for id := range d.PerUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	jobs := make([]job, 0, len(userIDs)+1)
	for _, id := range userIDs {
		rep := d.PerUser[id]
		jobs = append(jobs, job{
			key:        "user:" + id,
			report:     rep,
			recipients: []models.Recipient{{UserID: id, Email: rep.Email, Name: rep.Name}},
		})
	}
	if len(s.admins) > 0 {
		jobs = append(jobs, job{key: "admin", report: d.Admin, recipients: s.admins})
	} else {
		s.log.Warn("no admin recipients configured, admin digest skipped", zap.String("window_id", windowID))
	}
	sum.Reports = len(jobs)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			ev := models.Event{
				Category:   models.CategoryShipmentDigest,
				Target:     models.Target{UserID: j.report.UserID, Admins: j.report.Admin},
				Subject:    Subject(j.report),
				Body:       Body(j.report),
				Meta:       map[string]string{"window_id": windowID},
				OccurredAt: d.Admin.Rows[len(d.Admin.Rows)-1].Timestamp,
			}
			res, err := s.dispatcher.Dispatch(ctx, ev, j.recipients)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || res.Aggregate == models.OutcomeTotalFailure {
				sum.Dropped++
				sum.Outcomes[j.key] = models.OutcomeTotalFailure
				s.log.Error("digest dropped",
					zap.String("window_id", windowID),
					zap.String("report", j.key),
					zap.Int("rows", len(j.report.Rows)),
					zap.Int("recipients", len(j.recipients)),
					zap.Error(err))
				return nil
			}
			sum.Outcomes[j.key] = res.Aggregate
			return nil
		})
	}
	_ = g.Wait()

	if sum.Dropped > 0 {
		metrics.RecordDigestFlush("error", sum.Rows)
	} else {
		metrics.RecordDigestFlush("dispatched", sum.Rows)
	}
	s.log.Info("digest flushed",
		zap.String("window_id", windowID),
		zap.Int("rows", sum.Rows),
		zap.Int("reports", sum.Reports),
		zap.Int("dropped", sum.Dropped))
	return sum, nil
}
