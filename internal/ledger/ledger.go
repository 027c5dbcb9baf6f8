// Package ledger is the in-memory store of pending executions: the staged
// settlement plan for every order the maker has signed and not yet settled.
//
// The ledger is the single source of truth for whether an order may still be
// settled. Consume is the only way to obtain a record for settlement, so two
// fills for the same order can never both proceed.
package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// Observer is notified after each ledger transition. Callbacks run outside the
// ledger lock and must not block for long.
type Observer interface {
	Created(rec domain.PendingExecution)
	Consumed(rec domain.PendingExecution)
	Restored(rec domain.PendingExecution)
	Expired(rec domain.PendingExecution)
}

// Ledger is a mutex-guarded map of pending executions keyed by order hash.
type Ledger struct {
	mu      sync.Mutex
	records map[domain.OrderHash]domain.PendingExecution

	observers []Observer
	now       func() time.Time
}

// New creates an empty ledger.
func New(observers ...Observer) *Ledger {
	return &Ledger{
		records:   make(map[domain.OrderHash]domain.PendingExecution),
		observers: observers,
		now:       time.Now,
	}
}

// Create inserts rec. It fails with ErrAlreadyExists if a record with the same
// hash is present.
func (l *Ledger) Create(rec domain.PendingExecution) error {
	if rec.State == "" {
		rec.State = domain.ExecutionPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}

	l.mu.Lock()
	if _, exists := l.records[rec.OrderHash]; exists {
		l.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	l.records[rec.OrderHash] = rec
	l.mu.Unlock()

	l.notify(func(o Observer) { o.Created(rec) })
	return nil
}

// Consume removes and returns the record for hash. The caller owns the
// returned record; ok is false if no record exists.
func (l *Ledger) Consume(hash domain.OrderHash) (domain.PendingExecution, bool) {
	l.mu.Lock()
	rec, ok := l.records[hash]
	if ok {
		delete(l.records, hash)
	}
	l.mu.Unlock()

	if !ok {
		return domain.PendingExecution{}, false
	}
	rec.State = domain.ExecutionExecuting
	l.notify(func(o Observer) { o.Consumed(rec) })
	return rec, true
}

// Restore puts back a consumed record whose settlement failed. The record is
// stored in the failed state and kept until it is retried or expired.
func (l *Ledger) Restore(rec domain.PendingExecution) error {
	rec.State = domain.ExecutionFailed

	l.mu.Lock()
	if _, exists := l.records[rec.OrderHash]; exists {
		l.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	l.records[rec.OrderHash] = rec
	l.mu.Unlock()

	l.notify(func(o Observer) { o.Restored(rec) })
	return nil
}

// Expire removes the record for hash if present and reports whether it did.
func (l *Ledger) Expire(hash domain.OrderHash) bool {
	l.mu.Lock()
	rec, ok := l.records[hash]
	if ok {
		delete(l.records, hash)
	}
	l.mu.Unlock()

	if ok {
		rec.State = domain.ExecutionExpired
		l.notify(func(o Observer) { o.Expired(rec) })
	}
	return ok
}

// ExpirePending is Expire restricted to records still in the pending state. A
// record restored after a failed settlement is left in place.
func (l *Ledger) ExpirePending(hash domain.OrderHash) bool {
	l.mu.Lock()
	rec, ok := l.records[hash]
	if ok && rec.State != domain.ExecutionPending {
		ok = false
	}
	if ok {
		delete(l.records, hash)
	}
	l.mu.Unlock()

	if ok {
		rec.State = domain.ExecutionExpired
		l.notify(func(o Observer) { o.Expired(rec) })
	}
	return ok
}

// Get returns a copy of the record for hash.
func (l *Ledger) Get(hash domain.OrderHash) (domain.PendingExecution, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[hash]
	return rec, ok
}

// List returns all records ordered by creation time.
func (l *Ledger) List() []domain.PendingExecution {
	l.mu.Lock()
	out := make([]domain.PendingExecution, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderHash.Hex() < out[j].OrderHash.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Sweep expires pending records whose ExpiresAt is before now. Failed records
// are left for the operator. It returns the number of records removed.
func (l *Ledger) Sweep(now time.Time) int {
	l.mu.Lock()
	var expired []domain.PendingExecution
	for hash, rec := range l.records {
		if rec.State != domain.ExecutionPending || rec.ExpiresAt.IsZero() || !rec.ExpiresAt.Before(now) {
			continue
		}
		delete(l.records, hash)
		rec.State = domain.ExecutionExpired
		expired = append(expired, rec)
	}
	l.mu.Unlock()

	for _, rec := range expired {
		l.notify(func(o Observer) { o.Expired(rec) })
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(l.now()); n > 0 {
				logger.Info("swept expired executions", slog.Int("count", n), slog.Int("remaining", l.Len()))
			}
		}
	}
}

func (l *Ledger) notify(fn func(Observer)) {
	for _, o := range l.observers {
		fn(o)
	}
}
