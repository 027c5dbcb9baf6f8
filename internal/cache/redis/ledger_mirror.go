package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// PendingKey is the hash holding one JSON field per live pending execution.
const PendingKey = keyPrefix + "pending"

const mirrorTimeout = 2 * time.Second

// hashWriter is the subset of go-redis the mirror needs.
type hashWriter interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// LedgerMirror is a ledger observer that copies live records into a Redis hash
// for operators. It is write-only: nothing reads it back into the ledger.
type LedgerMirror struct {
	rdb    hashWriter
	logger *slog.Logger
}

// NewLedgerMirror creates a LedgerMirror backed by c.
func NewLedgerMirror(c *Client, logger *slog.Logger) *LedgerMirror {
	return newLedgerMirror(c.Underlying(), logger)
}

func newLedgerMirror(rdb hashWriter, logger *slog.Logger) *LedgerMirror {
	return &LedgerMirror{rdb: rdb, logger: logger.With(slog.String("component", "ledger_mirror"))}
}

func (m *LedgerMirror) Created(rec domain.PendingExecution)  { m.put(rec) }
func (m *LedgerMirror) Restored(rec domain.PendingExecution) { m.put(rec) }
func (m *LedgerMirror) Consumed(rec domain.PendingExecution) { m.drop(rec.OrderHash) }
func (m *LedgerMirror) Expired(rec domain.PendingExecution)  { m.drop(rec.OrderHash) }

func (m *LedgerMirror) put(rec domain.PendingExecution) {
	data, err := json.Marshal(rec)
	if err != nil {
		m.logger.Warn("encode pending execution", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.rdb.HSet(ctx, PendingKey, rec.OrderHash.Hex(), data).Err(); err != nil {
		m.logger.Warn("mirror pending execution",
			slog.String("order_hash", rec.OrderHash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (m *LedgerMirror) drop(hash domain.OrderHash) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.rdb.HDel(ctx, PendingKey, hash.Hex()).Err(); err != nil {
		m.logger.Warn("unmirror pending execution",
			slog.String("order_hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
