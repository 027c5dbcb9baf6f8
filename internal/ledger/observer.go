package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/metrics"
)

// GaugeObserver keeps the pending-executions gauge in step with the ledger.
type GaugeObserver struct{}

func (GaugeObserver) Created(domain.PendingExecution)  { metrics.PendingExecutions.Inc() }
func (GaugeObserver) Consumed(domain.PendingExecution) { metrics.PendingExecutions.Dec() }
func (GaugeObserver) Restored(domain.PendingExecution) { metrics.PendingExecutions.Inc() }
func (GaugeObserver) Expired(domain.PendingExecution)  { metrics.PendingExecutions.Dec() }

// EventObserver publishes expirations to the lifecycle event sink. Settlement
// outcomes are published by the executor, which knows the transaction hash.
type EventObserver struct {
	Publisher domain.EventPublisher
	Logger    *slog.Logger
}

func (EventObserver) Created(domain.PendingExecution)  {}
func (EventObserver) Consumed(domain.PendingExecution) {}
func (EventObserver) Restored(domain.PendingExecution) {}

func (e EventObserver) Expired(rec domain.PendingExecution) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Publisher.PublishLifecycle(ctx, domain.Lifecycle{
		Event:     domain.LifecycleExecutionExpired,
		OrderHash: rec.OrderHash,
		ChainID:   rec.ChainID,
		At:        time.Now().UTC(),
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("publish expiry failed",
			slog.String("order_hash", rec.OrderHash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
