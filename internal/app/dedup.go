package app

import (
	"context"
	"sync"
	"time"
)

// Deduplicator remembers order ids already handled by this process.
type Deduplicator interface {
	// MarkSeen records id and reports whether it was new.
	MarkSeen(ctx context.Context, id string) (bool, error)
	// Forget drops id so a later delivery is handled again.
	Forget(ctx context.Context, id string) error
}

// memoryDeduplicator is an in-process Deduplicator whose entries expire after ttl.
// Redis replaces it when several consumers share a group.
type memoryDeduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduplicator(ttl time.Duration) Deduplicator {
	return &memoryDeduplicator{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *memoryDeduplicator) MarkSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && (d.ttl <= 0 || now.Sub(at) < d.ttl) {
		return false, nil
	}
	d.seen[id] = now

	// Opportunistic sweep keeps the map bounded.
	if d.ttl > 0 && len(d.seen)%1024 == 0 {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
	}
	return true, nil
}

func (d *memoryDeduplicator) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}
