// Package digestrunner decides when digest windows close and flushes them.
package digestrunner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ReturnBox/internal/services/digest"
	"go.uber.org/zap"
)

type Flusher interface {
	FlushAndDispatch(ctx context.Context, windowID string) (digest.FlushSummary, error)
}

type Runner struct {
	flusher Flusher
	window  Window
	log     *zap.Logger

	stopTimeout time.Duration
	now         func() time.Time

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastFlushUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalFlushes        atomic.Int64
	totalRows           atomic.Int64
	totalReports        atomic.Int64
	totalDropped        atomic.Int64
	totalErrors         atomic.Int64
	lastMu              sync.Mutex
	lastWindowID        string
	lastError           string
}

func New(flusher Flusher, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		flusher:           flusher,
		window:            NewWindow(time.Hour),
		log:               log,
		stopTimeout:       10 * time.Second,
		now:               func() time.Time { return time.Now().UTC() },
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Runner) WithSettings(interval, stopTimeout time.Duration) *Runner {
	if interval > 0 {
		r.window = NewWindow(interval)
	}
	if stopTimeout > 0 {
		r.stopTimeout = stopTimeout
	}
	return r
}

func (r *Runner) Interval() time.Duration { return r.window.Interval() }

func (r *Runner) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	Interval      string     `json:"interval"`
	LastFlushAt   *time.Time `json:"lastFlushAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	LastWindowID  string     `json:"lastWindowId,omitempty"`
	TotalFlushes  int64      `json:"totalFlushes"`
	TotalRows     int64      `json:"totalRows"`
	TotalReports  int64      `json:"totalReports"`
	TotalDropped  int64      `json:"totalDropped"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (r *Runner) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, r.startedAtUnixNano).UTC(),
		Interval:     r.window.Interval().String(),
		TotalFlushes: r.totalFlushes.Load(),
		TotalRows:    r.totalRows.Load(),
		TotalReports: r.totalReports.Load(),
		TotalDropped: r.totalDropped.Load(),
		TotalErrors:  r.totalErrors.Load(),
	}
	if n := r.lastFlushUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastFlushAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastMu.Lock()
	st.LastWindowID = r.lastWindowID
	st.LastError = r.lastError
	r.lastMu.Unlock()
	return st
}

// Run flushes at every window boundary and on Trigger until ctx is done.
// Whatever is still buffered at shutdown is flushed once more.
func (r *Runner) Run(ctx context.Context) error {
	timer := time.NewTimer(r.window.UntilNext(r.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stopTimeout)
			r.flushOnce(stopCtx)
			cancel()
			return ctx.Err()
		case <-timer.C:
			r.flushOnce(ctx)
			timer.Reset(r.window.UntilNext(r.now()))
		case <-r.triggerCh:
			r.flushOnce(ctx)
		}
	}
}

func (r *Runner) flushOnce(ctx context.Context) {
	now := r.now()
	r.lastFlushUnixNano.Store(now.UnixNano())
	// A boundary tick lands at the start of the next window, so label by the one that just closed.
	windowID := r.window.ID(now.Add(-time.Nanosecond))

	sum, err := r.flusher.FlushAndDispatch(ctx, windowID)
	r.totalFlushes.Add(1)

	r.lastMu.Lock()
	r.lastWindowID = windowID
	if err != nil {
		r.lastError = err.Error()
	}
	r.lastMu.Unlock()

	if err != nil {
		r.totalErrors.Add(1)
		r.log.Error("digest flush failed", zap.String("window_id", windowID), zap.Error(err))
		return
	}
	r.totalRows.Add(int64(sum.Rows))
	r.totalReports.Add(int64(sum.Reports))
	r.totalDropped.Add(int64(sum.Dropped))
}
