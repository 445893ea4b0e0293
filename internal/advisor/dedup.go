package advisor

import (
	"context"
	"sync"
	"time"

	"shipment-tracker/internal/domain"
)

// memoryDeduper is the in-process fallback when redis is unavailable,
// so repeat advisories stay suppressed on memory-backed or degraded
// runs. Entries expire lazily on the next check.
type memoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func newMemoryDeduper(ttl time.Duration) *memoryDeduper {
	return &memoryDeduper{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (d *memoryDeduper) key(shipmentID string, typ domain.AdvisoryType) string {
	return shipmentID + ":" + string(typ)
}

func (d *memoryDeduper) CheckAdvisoryDedup(ctx context.Context, shipmentID string, typ domain.AdvisoryType) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := d.key(shipmentID, typ)
	expires, ok := d.seen[key]
	if !ok {
		return false, nil
	}
	if d.now().After(expires) {
		delete(d.seen, key)
		return false, nil
	}
	return true, nil
}

func (d *memoryDeduper) SetAdvisoryDedup(ctx context.Context, shipmentID string, typ domain.AdvisoryType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[d.key(shipmentID, typ)] = d.now().Add(d.ttl)
	return nil
}
