package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

type fillKey struct {
	maker domain.OrderHash
	taker domain.OrderHash
}

// Dedup suppresses repeated fill notifications for the same maker/taker pair
// within a TTL. It only quiets broadcast noise; at-most-once settlement rests
// on the ledger. It is safe for concurrent use.
type Dedup struct {
	seen map[fillKey]time.Time
	ttl  time.Duration
	mu   sync.Mutex
	now  func() time.Time
}

// NewDedup creates a Dedup with the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[fillKey]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether the pair was seen within the TTL, recording it
// if not.
func (d *Dedup) IsDuplicate(maker, taker domain.OrderHash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := fillKey{maker: maker, taker: taker}
	now := d.now()
	if lastSeen, ok := d.seen[key]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Cleanup removes entries older than the TTL.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

// Len returns the number of tracked pairs.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
