package memory

import (
	"context"
	"sync"
	"time"
)

// Deduper remembers webhook event ids for a fixed TTL.
type Deduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	nextSweep time.Time
	now       func() time.Time
}

// NewDeduper creates a Deduper.
func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Claim implements payment.EventDeduper.
func (d *Deduper) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[id] = now.Add(d.ttl)

	// Expired entries are swept at most once per TTL.
	if !now.Before(d.nextSweep) {
		for k, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, k)
			}
		}
		d.nextSweep = now.Add(d.ttl)
	}
	return true, nil
}

// Release implements payment.EventDeduper.
func (d *Deduper) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}
