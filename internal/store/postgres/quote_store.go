package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// QuoteStore implements domain.QuoteStore on the quotes table. Amounts are
// written as decimal text into NUMERIC(78) columns.
type QuoteStore struct {
	db DBTX
}

// NewQuoteStore creates a QuoteStore.
func NewQuoteStore(db DBTX) *QuoteStore {
	return &QuoteStore{db: db}
}

// Insert stores rec. A second insert for the same hash is ignored.
func (s *QuoteStore) Insert(ctx context.Context, rec domain.QuoteRecord) error {
	const query = `
		INSERT INTO quotes (
			order_hash, chain_id, quoter,
			input_token, input_amount, output_token, output_amount,
			quoted_amount, spread_bips, signature, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8::numeric, $9, $10, $11)
		ON CONFLICT (order_hash) DO NOTHING`

	_, err := s.db.Exec(ctx, query,
		rec.OrderHash.Hex(), int64(rec.ChainID), rec.Quoter,
		rec.InputToken, rec.InputAmount, rec.OutputToken, rec.OutputAmount,
		rec.QuotedAmount, rec.SpreadBips, rec.Signature, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert quote %s: %w", rec.OrderHash.Hex(), err)
	}
	return nil
}

// GetByHash returns the quote for hash or domain.ErrNotFound.
func (s *QuoteStore) GetByHash(ctx context.Context, hash domain.OrderHash) (domain.QuoteRecord, error) {
	const query = `
		SELECT order_hash, chain_id, quoter,
			input_token, input_amount::text, output_token, output_amount::text,
			quoted_amount::text, spread_bips, signature, created_at
		FROM quotes WHERE order_hash = $1`

	var (
		rec     domain.QuoteRecord
		hashHex string
		chainID int64
	)
	err := s.db.QueryRow(ctx, query, hash.Hex()).Scan(
		&hashHex, &chainID, &rec.Quoter,
		&rec.InputToken, &rec.InputAmount, &rec.OutputToken, &rec.OutputAmount,
		&rec.QuotedAmount, &rec.SpreadBips, &rec.Signature, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuoteRecord{}, fmt.Errorf("postgres: quote %s: %w", hash.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.QuoteRecord{}, fmt.Errorf("postgres: get quote %s: %w", hash.Hex(), err)
	}
	rec.OrderHash = common.HexToHash(hashHex)
	rec.ChainID = uint32(chainID)
	return rec, nil
}

var _ domain.QuoteStore = (*QuoteStore)(nil)
