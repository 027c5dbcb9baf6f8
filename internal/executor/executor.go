// Package executor settles matched orders: on a fill notification it takes
// the order's staged plan out of the ledger and submits it on-chain, through
// the vault when one is configured.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/rfqmaker/internal/chain"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/metrics"
	"github.com/alanyoungcy/rfqmaker/internal/notify"
)

// ErrNotRetryable is returned by Retry for records that are not in the failed
// state or have no recorded fill.
var ErrNotRetryable = errors.New("execution not retryable")

// Ledger is the part of the pending-execution store the executor uses.
type Ledger interface {
	Get(hash domain.OrderHash) (domain.PendingExecution, bool)
	Consume(hash domain.OrderHash) (domain.PendingExecution, bool)
	Restore(rec domain.PendingExecution) error
}

// CallSender submits a call from the maker wallet and waits for it to be
// mined.
type CallSender interface {
	Send(ctx context.Context, call domain.Call) (common.Hash, error)
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config configures an Executor.
type Config struct {
	Vault         common.Address // zero when fills are submitted from the wallet
	DedupTTL      time.Duration
	LockTTL       time.Duration
	SettleTimeout time.Duration
}

// Executor consumes fill notifications and settles them.
type Executor struct {
	cfg    Config
	ledger Ledger
	sender CallSender
	dedup  *Dedup
	logger *slog.Logger

	locks       domain.LockManager
	settlements domain.SettlementStore
	audit       domain.AuditStore
	events      domain.EventPublisher
	alerter     Alerter

	cleanupInterval time.Duration
	wg              sync.WaitGroup
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, ledger Ledger, sender CallSender, logger *slog.Logger) *Executor {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 2 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 3 * time.Minute
	}
	return &Executor{
		cfg:             cfg,
		ledger:          ledger,
		sender:          sender,
		dedup:           NewDedup(cfg.DedupTTL),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// SetLockManager enables the cross-replica settlement lock.
func (e *Executor) SetLockManager(l domain.LockManager) { e.locks = l }

// SetStores enables persistence of settlement attempts and audit entries.
// Either may be nil.
func (e *Executor) SetStores(settlements domain.SettlementStore, audit domain.AuditStore) {
	e.settlements = settlements
	e.audit = audit
}

// SetEventPublisher enables lifecycle event publishing.
func (e *Executor) SetEventPublisher(p domain.EventPublisher) { e.events = p }

// SetAlerter enables operator notifications.
func (e *Executor) SetAlerter(a Alerter) { e.alerter = a }

// Run settles fills until ctx is cancelled or the channel closes. Settlements
// in flight at shutdown run to completion under their own timeout.
func (e *Executor) Run(ctx context.Context, fills <-chan domain.DetailsToExecute) error {
	e.logger.Info("executor started", slog.Bool("vault", e.hasVault()))
	defer e.logger.Info("executor stopped")
	defer e.wg.Wait()

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain(ctx, fills)
			return nil
		case fill, ok := <-fills:
			if !ok {
				return nil
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.process(ctx, fill)
			}()
		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// drain settles fills already buffered when Run is asked to stop, so a fill
// that reached this process is not silently lost.
func (e *Executor) drain(ctx context.Context, fills <-chan domain.DetailsToExecute) {
	for {
		select {
		case fill, ok := <-fills:
			if !ok {
				return
			}
			e.logger.Warn("settling fill after shutdown", slog.String("maker_order_hash", fill.MakerOrderHash.Hex()))
			e.process(ctx, fill)
		default:
			return
		}
	}
}

// process handles one fill notification.
func (e *Executor) process(ctx context.Context, fill domain.DetailsToExecute) {
	log := e.logger.With(
		slog.String("order_hash", fill.MakerOrderHash.Hex()),
		slog.String("taker_order_hash", fill.TakerOrderHash.Hex()),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("settlement panic", slog.Any("panic", r))
		}
	}()

	if e.dedup.IsDuplicate(fill.MakerOrderHash, fill.TakerOrderHash) {
		metrics.Fills.WithLabelValues(metrics.FillDuplicate).Inc()
		log.Debug("duplicate fill notification")
		return
	}

	// Take the record before any I/O: whoever consumes it owns the settlement.
	rec, ok := e.ledger.Consume(fill.MakerOrderHash)
	if !ok {
		metrics.Fills.WithLabelValues(metrics.FillIgnored).Inc()
		log.Debug("fill for unknown order, ignoring")
		return
	}

	_ = e.settle(ctx, rec, fill, log)
}

// Retry re-runs settlement for a failed record with its last recorded fill.
func (e *Executor) Retry(ctx context.Context, hash domain.OrderHash) error {
	rec, ok := e.ledger.Get(hash)
	if !ok {
		return fmt.Errorf("executor: retry %s: %w", hash.Hex(), domain.ErrNotFound)
	}
	if rec.State != domain.ExecutionFailed || rec.Fill == nil {
		return fmt.Errorf("executor: retry %s: %w (state %s)", hash.Hex(), ErrNotRetryable, rec.State)
	}
	rec, ok = e.ledger.Consume(hash)
	if !ok {
		return fmt.Errorf("executor: retry %s: %w", hash.Hex(), domain.ErrNotFound)
	}

	log := e.logger.With(slog.String("order_hash", hash.Hex()), slog.Int("attempt", rec.Attempts+1))
	log.Info("retrying settlement")
	return e.settle(ctx, rec, *rec.Fill, log)
}

// settle submits a consumed record. On failure the record goes back into the
// ledger in the failed state; it is never dropped without a successful
// submission.
func (e *Executor) settle(ctx context.Context, rec domain.PendingExecution, fill domain.DetailsToExecute, log *slog.Logger) error {
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SettleTimeout)
	defer cancel()

	rec.Attempts++
	rec.Fill = &fill
	calls := Instructions(rec, fill)

	var (
		txHash common.Hash
		err    error
	)
	if e.locks != nil {
		unlock, lockErr := e.locks.Acquire(settleCtx, "settle:"+rec.OrderHash.Hex(), e.cfg.LockTTL)
		if lockErr != nil {
			metrics.Fills.WithLabelValues(metrics.FillLocked).Inc()
			err = fmt.Errorf("settlement lock: %w", lockErr)
		} else {
			defer unlock()
		}
	}
	if err == nil {
		txHash, err = e.submit(settleCtx, rec, calls, fill)
	}

	result := domain.SettlementRecord{
		OrderHash:      rec.OrderHash,
		TakerOrderHash: fill.TakerOrderHash,
		ChainID:        rec.ChainID,
		Calls:          len(calls),
		ViaVault:       e.hasVault(),
		CreatedAt:      time.Now().UTC(),
	}
	if txHash != (common.Hash{}) {
		result.TxHash = txHash.Hex()
	}

	if err != nil {
		rec.LastError = err.Error()
		if restoreErr := e.ledger.Restore(rec); restoreErr != nil {
			log.Error("restore failed execution", slog.String("error", restoreErr.Error()))
		}
		metrics.Fills.WithLabelValues(metrics.FillFailed).Inc()
		log.Error("settlement failed",
			slog.Int("attempts", rec.Attempts),
			slog.String("tx_hash", result.TxHash),
			slog.String("error", err.Error()),
		)

		result.Status = domain.SettlementFailed
		result.Error = err.Error()
		e.record(settleCtx, result, domain.LifecycleExecutionFailed, log)
		e.alert(settleCtx, notify.EventSettlementFailed, "Settlement failed", notify.SettlementMessage(result))
		return fmt.Errorf("executor: settle %s: %w", rec.OrderHash.Hex(), err)
	}

	metrics.Fills.WithLabelValues(metrics.FillSettled).Inc()
	log.Info("settled",
		slog.String("tx_hash", result.TxHash),
		slog.Int("calls", len(calls)),
		slog.Bool("vault", e.hasVault()),
	)
	result.Status = domain.SettlementSettled
	e.record(settleCtx, result, domain.LifecycleExecutionSettled, log)
	e.alert(settleCtx, notify.EventSettlementSucceeded, "Settled", notify.SettlementMessage(result))
	return nil
}

// submit sends the settlement transaction. With a vault the whole
// instruction list executes atomically; without one only the fill call is
// sent, since approvals already ran when the order was quoted.
func (e *Executor) submit(ctx context.Context, rec domain.PendingExecution, calls []domain.Call, fill domain.DetailsToExecute) (common.Hash, error) {
	start := time.Now()
	defer func() { metrics.SettlementLatency.Observe(time.Since(start).Seconds()) }()

	if !e.hasVault() {
		return e.sender.Send(ctx, fill.FillCall())
	}
	call, err := VaultCall(e.cfg.Vault, calls, rec.FlashAmounts)
	if err != nil {
		return common.Hash{}, err
	}
	return e.sender.Send(ctx, call)
}

func (e *Executor) hasVault() bool {
	return e.cfg.Vault != (common.Address{})
}

func (e *Executor) record(ctx context.Context, result domain.SettlementRecord, event domain.LifecycleEvent, log *slog.Logger) {
	if e.settlements != nil {
		if err := e.settlements.Insert(ctx, result); err != nil {
			log.Warn("persist settlement failed", slog.String("error", err.Error()))
		}
	}
	if e.audit != nil {
		detail := map[string]any{
			"order_hash": result.OrderHash.Hex(),
			"status":     string(result.Status),
			"tx_hash":    result.TxHash,
		}
		if err := e.audit.Log(ctx, string(event), detail); err != nil {
			log.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	if e.events != nil {
		err := e.events.PublishLifecycle(ctx, domain.Lifecycle{
			Event:     event,
			OrderHash: result.OrderHash,
			ChainID:   result.ChainID,
			TxHash:    result.TxHash,
			Error:     result.Error,
			At:        result.CreatedAt,
		})
		if err != nil {
			log.Warn("publish lifecycle event failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Executor) alert(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, event, title, message); err != nil {
		e.logger.Debug("notify failed", slog.String("error", err.Error()))
	}
}

// Instructions returns the ordered settlement calls for rec matched by fill:
// staged pre-calls, the fill itself, then staged post-calls.
func Instructions(rec domain.PendingExecution, fill domain.DetailsToExecute) []domain.Call {
	calls := make([]domain.Call, 0, len(rec.PreCalldata)+1+len(rec.PostCalldata))
	calls = append(calls, rec.PreCalldata...)
	calls = append(calls, fill.FillCall())
	calls = append(calls, rec.PostCalldata...)
	return calls
}

// VaultCall wraps calls into a single vault transaction: flashExecute when
// flash amounts are present, execute otherwise.
func VaultCall(vault common.Address, calls []domain.Call, flash []domain.FlashAmount) (domain.Call, error) {
	var (
		data []byte
		err  error
	)
	if len(flash) > 0 {
		data, err = chain.EncodeFlashExecute(flash, calls)
	} else {
		data, err = chain.EncodeExecute(calls)
	}
	if err != nil {
		return domain.Call{}, err
	}
	return domain.Call{To: vault, Value: chain.TotalValue(calls), Data: data}, nil
}
