package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// SettlementStore implements domain.SettlementStore on the settlements table.
type SettlementStore struct {
	db DBTX
}

// NewSettlementStore creates a SettlementStore.
func NewSettlementStore(db DBTX) *SettlementStore {
	return &SettlementStore{db: db}
}

const settlementSelectCols = `id, order_hash, taker_order_hash, chain_id, status,
	tx_hash, calls, via_vault, error, created_at`

// Insert appends one settlement attempt.
func (s *SettlementStore) Insert(ctx context.Context, rec domain.SettlementRecord) error {
	const query = `
		INSERT INTO settlements (
			order_hash, taker_order_hash, chain_id, status,
			tx_hash, calls, via_vault, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		rec.OrderHash.Hex(), rec.TakerOrderHash.Hex(), int64(rec.ChainID), string(rec.Status),
		rec.TxHash, rec.Calls, rec.ViaVault, rec.Error, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", rec.OrderHash.Hex(), err)
	}
	return nil
}

// ListByOrder returns every attempt for hash, oldest first.
func (s *SettlementStore) ListByOrder(ctx context.Context, hash domain.OrderHash) ([]domain.SettlementRecord, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements WHERE order_hash = $1 ORDER BY created_at, id`
	rows, err := s.db.Query(ctx, query, hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements %s: %w", hash.Hex(), err)
	}
	defer rows.Close()
	return scanSettlementRows(rows)
}

// ListBefore returns up to limit attempts created before the cutoff, oldest
// first.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.SettlementRecord, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements WHERE created_at < $1 ORDER BY created_at, id LIMIT $2`
	rows, err := s.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanSettlementRows(rows)
}

// DeleteBefore removes attempts created before the cutoff and returns how many
// were deleted.
func (s *SettlementStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM settlements WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlements before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanSettlementRows(rows pgx.Rows) ([]domain.SettlementRecord, error) {
	var out []domain.SettlementRecord
	for rows.Next() {
		var (
			r                  domain.SettlementRecord
			orderHex, takerHex string
			chainID            int64
			status             string
		)
		if err := rows.Scan(
			&r.ID, &orderHex, &takerHex, &chainID, &status,
			&r.TxHash, &r.Calls, &r.ViaVault, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		r.OrderHash = common.HexToHash(orderHex)
		r.TakerOrderHash = common.HexToHash(takerHex)
		r.ChainID = uint32(chainID)
		r.Status = domain.SettlementStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
