package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/executor"
)

// ExecutionLedger is the read and expire surface of the pending-execution
// store.
type ExecutionLedger interface {
	List() []domain.PendingExecution
	Get(hash domain.OrderHash) (domain.PendingExecution, bool)
	Expire(hash domain.OrderHash) bool
}

// Retrier re-runs settlement for a failed execution.
type Retrier interface {
	Retry(ctx context.Context, hash domain.OrderHash) error
}

// SettlementLister reads settlement history.
type SettlementLister interface {
	ListByOrder(ctx context.Context, hash domain.OrderHash) ([]domain.SettlementRecord, error)
}

// ExecutionHandler serves the pending-execution endpoints.
type ExecutionHandler struct {
	ledger      ExecutionLedger
	retrier     Retrier
	settlements SettlementLister
	logger      *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. retrier is nil in observe
// mode and settlements is nil without postgres.
func NewExecutionHandler(ledger ExecutionLedger, retrier Retrier, settlements SettlementLister, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{ledger: ledger, retrier: retrier, settlements: settlements, logger: logger}
}

type executionResponse struct {
	domain.PendingExecution
	Settlements []domain.SettlementRecord `json:"settlements,omitempty"`
}

// List returns every live pending execution, oldest first.
// GET /api/executions
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	recs := h.ledger.List()
	if recs == nil {
		recs = []domain.PendingExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": recs, "count": len(recs)})
}

// Get returns one pending execution with its settlement history when
// available.
// GET /api/executions/{hash}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order hash")
		return
	}
	rec, ok := h.ledger.Get(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	resp := executionResponse{PendingExecution: rec}
	if h.settlements != nil {
		history, err := h.settlements.ListByOrder(r.Context(), hash)
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: list settlements failed",
				slog.String("order_hash", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}
		resp.Settlements = history
	}
	writeJSON(w, http.StatusOK, resp)
}

// Retry re-runs settlement for a failed execution.
// POST /api/executions/{hash}/retry
func (h *ExecutionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if h.retrier == nil {
		writeError(w, http.StatusNotImplemented, "settlement disabled in this mode")
		return
	}
	hash, ok := hashParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order hash")
		return
	}

	err := h.retrier.Retry(r.Context(), hash)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "execution not found")
	case errors.Is(err, executor.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: retry failed",
			slog.String("order_hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// Expire drops a pending or failed execution.
// DELETE /api/executions/{hash}
func (h *ExecutionHandler) Expire(w http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order hash")
		return
	}
	if !h.ledger.Expire(hash) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	h.logger.InfoContext(r.Context(), "execution expired by operator", slog.String("order_hash", hash.Hex()))
	w.WriteHeader(http.StatusNoContent)
}
