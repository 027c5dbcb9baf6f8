package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/chain"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/ledger"
)

var (
	settlement = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	vault      = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	tokenA     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeSender struct {
	mu    sync.Mutex
	calls []domain.Call
	err   error
}

func (f *fakeSender) Send(_ context.Context, call domain.Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0xbeef"), nil
}

func (f *fakeSender) sent() []domain.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Call(nil), f.calls...)
}

type memSettlements struct {
	mu   sync.Mutex
	rows []domain.SettlementRecord
}

func (m *memSettlements) Insert(_ context.Context, rec domain.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memSettlements) ListByOrder(context.Context, domain.OrderHash) ([]domain.SettlementRecord, error) {
	return nil, nil
}

func (m *memSettlements) ListBefore(context.Context, time.Time, int) ([]domain.SettlementRecord, error) {
	return nil, nil
}

func (m *memSettlements) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hashOf(b byte) domain.OrderHash {
	var h domain.OrderHash
	h[31] = b
	return h
}

func pending(hash domain.OrderHash) domain.PendingExecution {
	approve, _ := chain.ApproveCall(tokenA, settlement, big.NewInt(100))
	return domain.PendingExecution{
		OrderHash:   hash,
		ChainID:     1,
		PreCalldata: []domain.Call{approve},
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func fillFor(maker, taker domain.OrderHash) domain.DetailsToExecute {
	return domain.DetailsToExecute{
		MakerOrderHash: maker,
		TakerOrderHash: taker,
		ChainID:        1,
		To:             settlement,
		Value:          new(big.Int),
		Data:           []byte{0xde, 0xad},
	}
}

func TestConcurrentFillsSettleOnce(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Create(pending(hashOf(1))))
	sender := &fakeSender{}
	ex := NewExecutor(Config{}, l, sender, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(taker byte) {
			defer wg.Done()
			ex.process(context.Background(), fillFor(hashOf(1), hashOf(100+taker)))
		}(byte(i))
	}
	wg.Wait()

	require.Len(t, sender.sent(), 1)
	assert.Equal(t, settlement, sender.sent()[0].To)
	_, ok := l.Get(hashOf(1))
	assert.False(t, ok, "settled record must leave the ledger")
}

func TestUnknownOrderIgnored(t *testing.T) {
	sender := &fakeSender{}
	ex := NewExecutor(Config{}, ledger.New(), sender, discardLogger())

	ex.process(context.Background(), fillFor(hashOf(9), hashOf(10)))
	assert.Empty(t, sender.sent())
}

func TestDuplicateNotificationSuppressed(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Create(pending(hashOf(1))))
	sender := &fakeSender{err: errors.New("reverted")}
	ex := NewExecutor(Config{}, l, sender, discardLogger())

	fill := fillFor(hashOf(1), hashOf(2))
	ex.process(context.Background(), fill)
	ex.process(context.Background(), fill)

	assert.Len(t, sender.sent(), 1)
}

func TestFailurePreservesRecordAndRetry(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Create(pending(hashOf(1))))
	sender := &fakeSender{err: errors.New("nonce too low")}
	store := &memSettlements{}
	ex := NewExecutor(Config{}, l, sender, discardLogger())
	ex.SetStores(store, nil)

	ex.process(context.Background(), fillFor(hashOf(1), hashOf(2)))

	rec, ok := l.Get(hashOf(1))
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionFailed, rec.State)
	assert.Equal(t, 1, rec.Attempts)
	assert.Contains(t, rec.LastError, "nonce too low")
	require.NotNil(t, rec.Fill)
	assert.Equal(t, hashOf(2), rec.Fill.TakerOrderHash)

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()

	require.NoError(t, ex.Retry(context.Background(), hashOf(1)))
	_, ok = l.Get(hashOf(1))
	assert.False(t, ok)
	assert.Len(t, sender.sent(), 2)

	require.Len(t, store.rows, 2)
	assert.Equal(t, domain.SettlementFailed, store.rows[0].Status)
	assert.Equal(t, domain.SettlementSettled, store.rows[1].Status)
	assert.Equal(t, common.HexToHash("0xbeef").Hex(), store.rows[1].TxHash)
}

func TestRetryRequiresFailedRecord(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Create(pending(hashOf(1))))
	ex := NewExecutor(Config{}, l, &fakeSender{}, discardLogger())

	err := ex.Retry(context.Background(), hashOf(1))
	assert.ErrorIs(t, err, ErrNotRetryable)

	err = ex.Retry(context.Background(), hashOf(2))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVaultSettlementEncoding(t *testing.T) {
	tests := []struct {
		name   string
		flash  []domain.FlashAmount
		method string
	}{
		{name: "execute", method: "execute"},
		{
			name:   "flash execute",
			flash:  []domain.FlashAmount{{Token: tokenA, Amount: big.NewInt(7)}},
			method: "flashExecute",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New()
			rec := pending(hashOf(1))
			rec.FlashAmounts = tt.flash
			require.NoError(t, l.Create(rec))
			sender := &fakeSender{}
			ex := NewExecutor(Config{Vault: vault}, l, sender, discardLogger())

			fill := fillFor(hashOf(1), hashOf(2))
			fill.Value = big.NewInt(3)
			ex.process(context.Background(), fill)

			sent := sender.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, vault, sent[0].To)
			assert.Equal(t, int64(3), sent[0].Value.Int64())
			assert.Equal(t, chain.VaultABI().Methods[tt.method].ID, sent[0].Data[:4])
		})
	}
}

func TestInstructionsOrder(t *testing.T) {
	rec := pending(hashOf(1))
	post := domain.Call{To: tokenA, Value: new(big.Int), Data: []byte{0x01}}
	rec.PostCalldata = []domain.Call{post}
	fill := fillFor(hashOf(1), hashOf(2))

	calls := Instructions(rec, fill)
	require.Len(t, calls, 3)
	assert.Equal(t, rec.PreCalldata[0], calls[0])
	assert.Equal(t, fill.FillCall(), calls[1])
	assert.Equal(t, post, calls[2])
}

func TestRunSettlesAndStops(t *testing.T) {
	defer leaktest.Check(t)()

	l := ledger.New()
	require.NoError(t, l.Create(pending(hashOf(1))))
	sender := &fakeSender{}
	ex := NewExecutor(Config{}, l, sender, discardLogger())

	fills := make(chan domain.DetailsToExecute, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ex.Run(ctx, fills) }()

	fills <- fillFor(hashOf(1), hashOf(2))
	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("executor did not stop")
	}
}

func TestDedupExpiry(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate(hashOf(1), hashOf(2)))
	assert.True(t, d.IsDuplicate(hashOf(1), hashOf(2)))
	assert.False(t, d.IsDuplicate(hashOf(1), hashOf(3)))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.IsDuplicate(hashOf(1), hashOf(2)))
}
