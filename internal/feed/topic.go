package feed

import (
	"sync"

	"github.com/alanyoungcy/rfqmaker/internal/metrics"
)

// Topic is a typed fan-out channel. Publish never blocks: a subscriber whose
// buffer is full misses the event and the drop is counted.
type Topic[T any] struct {
	name string

	mu     sync.RWMutex
	subs   map[uint64]chan T
	nextID uint64
	onDrop func(T)
}

// NewTopic creates an empty topic. name labels its drop metric.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name, subs: make(map[uint64]chan T)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call more
// than once.
func (t *Topic[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan T, buffer)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// OnDrop registers fn to be called with every value a full subscriber misses.
// fn runs on the publishing goroutine and must not block.
func (t *Topic[T]) OnDrop(fn func(T)) {
	t.mu.Lock()
	t.onDrop = fn
	t.mu.Unlock()
}

// Publish delivers v to every subscriber that has room for it and returns the
// number of subscribers that received it.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	delivered := 0
	for _, ch := range t.subs {
		select {
		case ch <- v:
			delivered++
		default:
			metrics.FeedDropped.WithLabelValues(t.name).Inc()
			if t.onDrop != nil {
				t.onDrop(v)
			}
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
