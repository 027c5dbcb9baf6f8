package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

type fakeHash struct {
	mu     sync.Mutex
	fields map[string]string
	err    error
}

func newFakeHash() *fakeHash { return &fakeHash{fields: make(map[string]string)} }

func (f *fakeHash) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.fields[key+"/"+values[i].(string)] = string(values[i+1].([]byte))
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeHash) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range fields {
		delete(f.fields, key+"/"+field)
	}
	cmd.SetVal(int64(len(fields)))
	return cmd
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLedgerMirrorTracksLiveRecords(t *testing.T) {
	store := newFakeHash()
	m := newLedgerMirror(store, discardLogger())

	var hash domain.OrderHash
	hash[31] = 7
	rec := domain.PendingExecution{OrderHash: hash, ChainID: 1, State: domain.ExecutionPending}
	field := PendingKey + "/" + hash.Hex()

	m.Created(rec)
	require.Contains(t, store.fields, field)
	var got domain.PendingExecution
	require.NoError(t, json.Unmarshal([]byte(store.fields[field]), &got))
	assert.Equal(t, domain.ExecutionPending, got.State)

	m.Consumed(rec)
	assert.NotContains(t, store.fields, field)

	rec.State = domain.ExecutionFailed
	m.Restored(rec)
	require.NoError(t, json.Unmarshal([]byte(store.fields[field]), &got))
	assert.Equal(t, domain.ExecutionFailed, got.State)

	m.Expired(rec)
	assert.Empty(t, store.fields)
}

func TestLedgerMirrorErrorsAreNotFatal(t *testing.T) {
	store := newFakeHash()
	store.err = errors.New("connection refused")
	m := newLedgerMirror(store, discardLogger())

	assert.NotPanics(t, func() { m.Created(domain.PendingExecution{}) })
	assert.Empty(t, store.fields)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "rfq:lock:settle:0xab", lockKey("settle:0xab"))
	assert.Equal(t, "rfq:ratelimit:quote:1:a:b", rateLimitKey("quote:1:a:b"))
	assert.Equal(t, "rfq:pending", PendingKey)
}

func TestExclusiveStart(t *testing.T) {
	assert.Equal(t, "-", exclusiveStart(""))
	assert.Equal(t, "-", exclusiveStart("0"))
	assert.Equal(t, "(1700000000000-0", exclusiveStart("1700000000000-0"))
}

func TestToStreamMessagesSkipsForeignEntries(t *testing.T) {
	got := toStreamMessages([]redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"payload": `{"event":"order.signed"}`}},
		{ID: "2-0", Values: map[string]interface{}{"other": "x"}},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "1-0", got[0].ID)
	assert.JSONEq(t, `{"event":"order.signed"}`, string(got[0].Payload))
}
