package digest

import (
	"context"
	"sync"

	"github.com/BearBump/ReturnBox/internal/models"
)

type MemoryBuffer struct {
	mu    sync.Mutex
	items []models.TrackingUpdate
}

func NewMemoryBuffer() *MemoryBuffer { return &MemoryBuffer{} }

func (b *MemoryBuffer) Append(_ context.Context, u models.TrackingUpdate) error {
	b.mu.Lock()
	b.items = append(b.items, u)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBuffer) Drain(_ context.Context) ([]models.TrackingUpdate, error) {
	b.mu.Lock()
	out := b.items
	b.items = nil
	b.mu.Unlock()
	return out, nil
}

func (b *MemoryBuffer) Len(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items), nil
}
