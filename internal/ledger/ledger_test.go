package ledger

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(kind string, rec domain.PendingExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+string(rec.State))
}

func (r *recordingObserver) Created(rec domain.PendingExecution)  { r.add("created", rec) }
func (r *recordingObserver) Consumed(rec domain.PendingExecution) { r.add("consumed", rec) }
func (r *recordingObserver) Restored(rec domain.PendingExecution) { r.add("restored", rec) }
func (r *recordingObserver) Expired(rec domain.PendingExecution)  { r.add("expired", rec) }

func record(hash string) domain.PendingExecution {
	return domain.PendingExecution{
		OrderHash: common.HexToHash(hash),
		ChainID:   1,
		ExpiresAt: time.Unix(1000, 0),
	}
}

func TestLedgerLifecycle(t *testing.T) {
	obs := &recordingObserver{}
	l := New(obs)
	rec := record("0x01")

	require.NoError(t, l.Create(rec))
	assert.ErrorIs(t, l.Create(rec), domain.ErrAlreadyExists)
	assert.Equal(t, 1, l.Len())

	got, ok := l.Get(rec.OrderHash)
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionPending, got.State)

	taken, ok := l.Consume(rec.OrderHash)
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionExecuting, taken.State)
	_, ok = l.Consume(rec.OrderHash)
	assert.False(t, ok)

	require.NoError(t, l.Restore(taken))
	got, _ = l.Get(rec.OrderHash)
	assert.Equal(t, domain.ExecutionFailed, got.State)
	assert.ErrorIs(t, l.Restore(taken), domain.ErrAlreadyExists)

	assert.True(t, l.Expire(rec.OrderHash))
	assert.False(t, l.Expire(rec.OrderHash))
	assert.Equal(t, 0, l.Len())

	want := []string{"created:pending", "consumed:executing", "restored:failed", "expired:expired"}
	if diff := cmp.Diff(want, obs.events); diff != "" {
		t.Errorf("observer events mismatch (-want +got):\n%s", diff)
	}
}

func TestLedgerConsumeIsAtMostOnce(t *testing.T) {
	l := New()
	rec := record("0x02")
	require.NoError(t, l.Create(rec))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.Consume(rec.OrderHash); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLedgerSweepKeepsFailedRecords(t *testing.T) {
	l := New()
	stale := record("0x03")
	fresh := record("0x04")
	fresh.ExpiresAt = time.Unix(5000, 0)
	failed := record("0x05")

	require.NoError(t, l.Create(stale))
	require.NoError(t, l.Create(fresh))
	require.NoError(t, l.Restore(failed))

	assert.Equal(t, 1, l.Sweep(time.Unix(2000, 0)))

	_, ok := l.Get(stale.OrderHash)
	assert.False(t, ok)
	_, ok = l.Get(fresh.OrderHash)
	assert.True(t, ok)
	_, ok = l.Get(failed.OrderHash)
	assert.True(t, ok)
}

func TestLedgerListOrdersByCreation(t *testing.T) {
	l := New()
	a, b := record("0x0a"), record("0x0b")
	a.CreatedAt = time.Unix(20, 0)
	b.CreatedAt = time.Unix(10, 0)
	require.NoError(t, l.Create(a))
	require.NoError(t, l.Create(b))

	list := l.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.OrderHash, list[0].OrderHash)
	assert.Equal(t, a.OrderHash, list[1].OrderHash)
}

func TestLedgerExpirePendingSkipsFailed(t *testing.T) {
	obs := &recordingObserver{}
	l := New(obs)
	pending, failed := record("0x01"), record("0x02")
	require.NoError(t, l.Create(pending))
	require.NoError(t, l.Create(failed))

	taken, ok := l.Consume(failed.OrderHash)
	require.True(t, ok)
	require.NoError(t, l.Restore(taken))

	assert.False(t, l.ExpirePending(failed.OrderHash))
	got, ok := l.Get(failed.OrderHash)
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionFailed, got.State)

	assert.True(t, l.ExpirePending(pending.OrderHash))
	assert.False(t, l.ExpirePending(pending.OrderHash))
	assert.Equal(t, 1, l.Len())
	assert.Contains(t, obs.events, "expired:expired")
}
