package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// QuoteRecord is one signed order issued in response to a quote request.
type QuoteRecord struct {
	OrderHash    OrderHash
	ChainID      uint32
	Quoter       string
	InputToken   string
	InputAmount  string
	OutputToken  string
	OutputAmount string
	QuotedAmount string // raw quoter output before gas and spread
	SpreadBips   int
	Signature    string
	CreatedAt    time.Time
}

// QuoteStore persists issued quotes.
type QuoteStore interface {
	Insert(ctx context.Context, rec QuoteRecord) error
	GetByHash(ctx context.Context, hash OrderHash) (QuoteRecord, error)
}

// SettlementStatus is the outcome of one settlement attempt.
type SettlementStatus string

const (
	SettlementSettled SettlementStatus = "settled"
	SettlementFailed  SettlementStatus = "failed"
)

// SettlementRecord is one settlement attempt for a matched order.
type SettlementRecord struct {
	ID             int64            `json:"id"`
	OrderHash      OrderHash        `json:"orderHash"`
	TakerOrderHash OrderHash        `json:"takerOrderHash"`
	ChainID        uint32           `json:"chainId"`
	Status         SettlementStatus `json:"status"`
	TxHash         string           `json:"txHash,omitempty"`
	Calls          int              `json:"calls"`
	ViaVault       bool             `json:"viaVault"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// SettlementStore persists settlement attempts.
type SettlementStore interface {
	Insert(ctx context.Context, rec SettlementRecord) error
	ListByOrder(ctx context.Context, hash OrderHash) ([]SettlementRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]SettlementRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
