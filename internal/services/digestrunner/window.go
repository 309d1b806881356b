package digestrunner

import (
	"time"
)

const windowLayout = "20060102T1504Z"

type Window struct {
	interval time.Duration
}

func NewWindow(interval time.Duration) Window {
	if interval <= 0 {
		interval = time.Hour
	}
	return Window{interval: interval}
}

func (w Window) Interval() time.Duration { return w.interval }

// ID labels the window that t falls into, e.g. "digest-20250601T0900Z".
func (w Window) ID(t time.Time) string {
	return "digest-" + w.Start(t).Format(windowLayout)
}

func (w Window) Start(t time.Time) time.Time {
	return t.UTC().Truncate(w.interval)
}

func (w Window) UntilNext(t time.Time) time.Duration {
	next := w.Start(t).Add(w.interval)
	return next.Sub(t.UTC())
}
