package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/metrics"
)

const (
	jsonlContentType  = "application/x-ndjson"
	defaultBatchSize  = 1000
	multipartMinBytes = minPartSize
)

// SettlementArchiver implements domain.Archiver. It moves settlement rows older
// than a cutoff into JSONL objects and deletes each batch from the database
// only after its upload succeeded.
type SettlementArchiver struct {
	writer      domain.BlobWriter
	settlements domain.SettlementStore
	audit       domain.AuditStore
	batchSize   int
	logger      *slog.Logger
}

// NewArchiver creates a SettlementArchiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, settlements domain.SettlementStore, audit domain.AuditStore, logger *slog.Logger) *SettlementArchiver {
	return &SettlementArchiver{
		writer:      writer,
		settlements: settlements,
		audit:       audit,
		batchSize:   defaultBatchSize,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettlements archives every settlement row created before the cutoff
// and returns how many rows were archived.
func (a *SettlementArchiver) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		rows, err := a.settlements.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive settlements query: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		batch, cutoff := splitBatch(rows, a.batchSize, before)
		path := archivePath(batch[0])
		if err := a.upload(ctx, path, batch); err != nil {
			return total, err
		}
		if _, err := a.settlements.DeleteBefore(ctx, cutoff); err != nil {
			return total, fmt.Errorf("s3blob: archive settlements delete: %w", err)
		}

		n := int64(len(batch))
		total += n
		metrics.SettlementsArchived.Add(float64(n))
		a.logger.Info("archived settlements", slog.String("path", path), slog.Int64("count", n))
		a.auditLog(ctx, path, n, cutoff)

		if len(rows) < a.batchSize {
			break
		}
	}
	return total, nil
}

func (a *SettlementArchiver) upload(ctx context.Context, path string, rows []domain.SettlementRecord) error {
	buf, err := marshalJSONL(rows)
	if err != nil {
		return fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}
	if int64(len(buf)) >= multipartMinBytes {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}
	return nil
}

func (a *SettlementArchiver) auditLog(ctx context.Context, path string, count int64, cutoff time.Time) {
	if a.audit == nil {
		return
	}
	err := a.audit.Log(ctx, "archive.settlements", map[string]any{
		"path":   path,
		"count":  count,
		"before": cutoff.Format(time.RFC3339Nano),
	})
	if err != nil {
		a.logger.Warn("archive audit log failed", slog.String("error", err.Error()))
	}
}

// splitBatch decides which listed rows to archive and the delete cutoff for
// them. A full page may end in the middle of a timestamp; rows sharing the
// last timestamp are left for the next page so the delete never removes a row
// that was not uploaded.
func splitBatch(rows []domain.SettlementRecord, limit int, before time.Time) ([]domain.SettlementRecord, time.Time) {
	if len(rows) < limit {
		return rows, before
	}
	last := rows[len(rows)-1].CreatedAt
	i := len(rows)
	for i > 0 && rows[i-1].CreatedAt.Equal(last) {
		i--
	}
	if i == 0 {
		// Whole page shares one timestamp.
		return rows, last.Add(time.Microsecond)
	}
	return rows[:i], last
}

// archivePath partitions archives by the day of their oldest row:
//
//	settlements/2025/01/02/1735776000-42.jsonl
func archivePath(first domain.SettlementRecord) string {
	t := first.CreatedAt.UTC()
	return fmt.Sprintf("settlements/%s/%d-%d.jsonl", t.Format("2006/01/02"), t.Unix(), first.ID)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*SettlementArchiver)(nil)
