package dispatch

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper is a process-local Deduper for single-instance deployments and tests.
type MemoryDeduper struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{expires: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.expires[key] = now.Add(ttl)
	// Opportunistic sweep keeps the map bounded by live keys.
	if len(d.expires) > 1024 {
		for k, exp := range d.expires {
			if !now.Before(exp) {
				delete(d.expires, k)
			}
		}
	}
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.expires, key)
	d.mu.Unlock()
	return nil
}
