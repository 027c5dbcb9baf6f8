package pipeline

import (
	"sync"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// cancelTimers tracks the one-shot cancellation timers of live orders.
type cancelTimers struct {
	mu      sync.Mutex
	timers  map[domain.OrderHash]*time.Timer
	stopped bool
}

func newCancelTimers() *cancelTimers {
	return &cancelTimers{timers: make(map[domain.OrderHash]*time.Timer)}
}

// arm schedules fn after d. It is a no-op once stopAll has run.
func (c *cancelTimers) arm(hash domain.OrderHash, d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.timers[hash] = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, hash)
		c.mu.Unlock()
		fn()
	})
}

func (c *cancelTimers) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// stopAll stops every pending timer and refuses new ones.
func (c *cancelTimers) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for hash, t := range c.timers {
		t.Stop()
		delete(c.timers, hash)
	}
}
