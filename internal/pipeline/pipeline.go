// Package pipeline turns quote requests from the feed into signed, staged
// orders: it prices each request, applies gas and spread adjustments, signs
// the inverted order, records its settlement plan in the ledger and publishes
// it to the backend.
package pipeline

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/rfqmaker/internal/chain"
	"github.com/alanyoungcy/rfqmaker/internal/crypto"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/metrics"
	"github.com/alanyoungcy/rfqmaker/internal/quoter"
)

// OrderPlacer publishes and withdraws signed orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order domain.SignedOrder) error
	CancelOrder(ctx context.Context, hash domain.OrderHash) error
}

// Ledger is the part of the pending-execution store the pipeline writes.
type Ledger interface {
	Create(rec domain.PendingExecution) error
	ExpirePending(hash domain.OrderHash) bool
}

// CallSender submits a single call from the maker wallet and waits for it.
type CallSender interface {
	Send(ctx context.Context, call domain.Call) (common.Hash, error)
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the pipeline's economic and identity settings.
type Config struct {
	ChainID       uint32
	Wallet        common.Address
	Vault         common.Address // zero when no vault is deployed
	SpreadBips    int
	SponsorGas    bool
	GasLimit      uint64
	CancelAfter   time.Duration // zero disables timed cancellation
	OrderTTL      time.Duration
	ExpiryGrace   time.Duration
	Counter       *big.Int
	Zone          *big.Int
	MaxConcurrent int
	RateLimit     int // requests per pair per second; zero disables
}

// Maker returns the on-chain identity orders are issued from.
func (c Config) Maker() common.Address {
	if c.HasVault() {
		return c.Vault
	}
	return c.Wallet
}

// HasVault reports whether settlement goes through a vault.
func (c Config) HasVault() bool {
	return c.Vault != (common.Address{})
}

// Pipeline handles quote requests.
type Pipeline struct {
	cfg    Config
	quoter quoter.Quoter
	signer crypto.MessageSigner
	codec  crypto.OrderCodec
	placer OrderPlacer
	ledger Ledger
	logger *slog.Logger

	gas        *GasPricer
	allowances *AllowanceCache
	sender     CallSender
	limiter    domain.RateLimiter
	quotes     domain.QuoteStore
	events     domain.EventPublisher
	alerter    Alerter

	sem    *semaphore.Weighted
	timers *cancelTimers
	wg     sync.WaitGroup

	now  func() time.Time
	salt func() (*big.Int, error)
}

// New creates a Pipeline. Optional collaborators are attached with the Set
// methods before Run.
func New(cfg Config, q quoter.Quoter, signer crypto.MessageSigner, placer OrderPlacer, ledger Ledger, logger *slog.Logger) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = 5 * time.Minute
	}
	return &Pipeline{
		cfg:    cfg,
		quoter: q,
		signer: signer,
		placer: placer,
		ledger: ledger,
		logger: logger.With(slog.String("component", "quote_pipeline")),
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timers: newCancelTimers(),
		now:    time.Now,
		salt:   randomSalt,
	}
}

// SetGasPricer enables conversion of sponsored gas into the output token.
func (p *Pipeline) SetGasPricer(g *GasPricer) { p.gas = g }

// SetAllowances attaches the approval cache and, for wallet-only makers, the
// sender used to run approvals eagerly.
func (p *Pipeline) SetAllowances(cache *AllowanceCache, sender CallSender) {
	p.allowances = cache
	p.sender = sender
}

// SetRateLimiter enables per-pair rate limiting.
func (p *Pipeline) SetRateLimiter(l domain.RateLimiter) { p.limiter = l }

// SetQuoteStore enables persistence of issued quotes.
func (p *Pipeline) SetQuoteStore(s domain.QuoteStore) { p.quotes = s }

// SetEventPublisher enables lifecycle event publishing.
func (p *Pipeline) SetEventPublisher(e domain.EventPublisher) { p.events = e }

// SetAlerter enables operator notifications for quote errors.
func (p *Pipeline) SetAlerter(a Alerter) { p.alerter = a }

// Run handles requests until ctx is cancelled or the channel closes. Each
// request runs in its own goroutine, bounded by MaxConcurrent. On return all
// in-flight requests have finished and all cancel timers are stopped.
func (p *Pipeline) Run(ctx context.Context, requests <-chan domain.QuoteRequest) error {
	p.logger.Info("quote pipeline started",
		slog.Uint64("chain_id", uint64(p.cfg.ChainID)),
		slog.String("maker", p.cfg.Maker().Hex()),
		slog.String("quoter", p.quoter.Name()),
		slog.Int("spread_bips", p.cfg.SpreadBips),
	)
	defer func() {
		p.wg.Wait()
		p.timers.stopAll()
		p.logger.Info("quote pipeline stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.sem.Release(1)
				p.dispatch(ctx, req)
			}()
		}
	}
}

// dispatch handles one request and swallows every failure.
func (p *Pipeline) dispatch(ctx context.Context, req domain.QuoteRequest) {
	log := p.logger.With(
		slog.Uint64("chain_id", uint64(req.ChainID)),
		slog.String("input_token", req.InputToken.Hex()),
		slog.String("output_token", req.OutputToken.Hex()),
		slog.String("input_amount", domain.FormatAmount(req.InputAmount)),
	)
	defer func() {
		if r := recover(); r != nil {
			metrics.QuoteRequests.WithLabelValues(metrics.OutcomeError).Inc()
			log.Error("quote handler panic", slog.Any("panic", r))
		}
	}()

	start := p.now()
	order, err := p.Handle(ctx, req)
	switch {
	case err == nil:
		metrics.QuoteRequests.WithLabelValues(metrics.OutcomeSigned).Inc()
		metrics.QuoteLatency.Observe(time.Since(start).Seconds())
		log.Info("order placed",
			slog.String("order_hash", order.Hash.Hex()),
			slog.String("offered", domain.FormatAmount(order.Order.InputAmount)),
		)
	case errors.Is(err, errIgnored):
		metrics.QuoteRequests.WithLabelValues(metrics.OutcomeIgnored).Inc()
		log.Debug("quote request ignored", slog.String("reason", err.Error()))
	case errors.Is(err, domain.ErrQuoteRejected):
		metrics.QuoteRequests.WithLabelValues(metrics.OutcomeRejected).Inc()
		log.Info("quote rejected", slog.String("reason", err.Error()))
	case errors.Is(err, domain.ErrRateLimited):
		metrics.QuoteRequests.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		log.Debug("quote request rate limited")
	default:
		metrics.QuoteRequests.WithLabelValues(metrics.OutcomeError).Inc()
		log.Warn("quote failed", slog.String("error", err.Error()))
		p.alert(ctx, "quote_error", "Quote failed", err.Error())
	}
}

// errIgnored marks requests that are filtered out before pricing.
var errIgnored = errors.New("ignored")

// Handle runs one quote request through pricing, signing, staging and
// placement. It returns the placed order.
func (p *Pipeline) Handle(ctx context.Context, req domain.QuoteRequest) (domain.SignedOrder, error) {
	if req.ChainID != p.cfg.ChainID {
		return domain.SignedOrder{}, fmt.Errorf("%w: chain %d", errIgnored, req.ChainID)
	}
	if req.InputAmount == nil || req.InputAmount.Sign() <= 0 {
		return domain.SignedOrder{}, fmt.Errorf("%w: zero input amount", errIgnored)
	}
	if err := p.checkRate(ctx, req); err != nil {
		return domain.SignedOrder{}, err
	}

	maker := p.cfg.Maker()
	req.FromAddress = maker

	// 1. Price.
	quote, err := p.quoter.GetOutputAmountQuote(ctx, req)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("quote %s: %w", p.quoter.Name(), err)
	}
	if quote.OutputAmount == nil {
		return domain.SignedOrder{}, fmt.Errorf("quote %s: empty output amount", p.quoter.Name())
	}

	// 2. Sponsored gas.
	adjusted := new(big.Int).Set(quote.OutputAmount)
	if p.cfg.SponsorGas {
		adjusted.Sub(adjusted, p.gasCost(ctx, req.OutputToken, quote))
	}

	// 3. Economic floor.
	if adjusted.Sign() < 0 {
		return domain.SignedOrder{}, fmt.Errorf("%w: gas exceeds output (%s)", domain.ErrQuoteRejected, adjusted)
	}
	if req.OutputAmount != nil && adjusted.Cmp(req.OutputAmount) < 0 {
		return domain.SignedOrder{}, fmt.Errorf("%w: %s below requested %s", domain.ErrQuoteRejected, adjusted, req.OutputAmount)
	}

	// 4. Spread.
	effective := ApplySpread(adjusted, p.cfg.SpreadBips)

	// 5. Build and sign the inverted order.
	order, err := p.buildOrder(req, maker, effective)
	if err != nil {
		return domain.SignedOrder{}, err
	}
	signed, err := p.codec.Sign(p.signer, order)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("sign order: %w", err)
	}
	metrics.OrdersSigned.Inc()

	// 6. Stage the financing calls.
	pre, err := p.stage(ctx, req, quote, maker)
	if err != nil {
		return domain.SignedOrder{}, err
	}

	// 7. Record the settlement plan. Without a vault there is no atomic
	// wrapper: approvals run now and the executor sends only the fill, so
	// nothing stays staged.
	if !p.cfg.HasVault() {
		if err := p.runApprovals(ctx, pre); err != nil {
			return domain.SignedOrder{}, err
		}
		pre = nil
	}
	rec := domain.PendingExecution{
		OrderHash:   signed.Hash,
		ChainID:     req.ChainID,
		PreCalldata: pre,
		State:       domain.ExecutionPending,
		CreatedAt:   p.now().UTC(),
		ExpiresAt:   time.Unix(int64(order.EndTime), 0).Add(p.cfg.ExpiryGrace).UTC(),
	}
	if err := p.ledger.Create(rec); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("record execution %s: %w", signed.Hash.Hex(), err)
	}

	// 8. Publish.
	if err := p.placer.PlaceOrder(ctx, signed); err != nil {
		p.ledger.ExpirePending(signed.Hash)
		return domain.SignedOrder{}, fmt.Errorf("place order: %w", err)
	}
	if p.cfg.CancelAfter > 0 {
		p.timers.arm(signed.Hash, p.cfg.CancelAfter, func() { p.cancel(signed.Hash, req.ChainID) })
	}

	p.record(ctx, req, quote, signed)
	return signed, nil
}

func (p *Pipeline) checkRate(ctx context.Context, req domain.QuoteRequest) error {
	if p.limiter == nil || p.cfg.RateLimit <= 0 {
		return nil
	}
	key := "quote:" + strconv.FormatUint(uint64(req.ChainID), 10) + ":" + req.InputToken.Hex() + ":" + req.OutputToken.Hex()
	ok, err := p.limiter.Allow(ctx, key, p.cfg.RateLimit, time.Second)
	if err != nil {
		// Fail open: a limiter outage must not stop quoting.
		p.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

// gasCost prices the sponsored gas in the output token, falling back to a
// one basis point haircut when it cannot be priced.
func (p *Pipeline) gasCost(ctx context.Context, token common.Address, quote domain.Quote) *big.Int {
	units := quote.Gas
	if units == 0 {
		units = p.cfg.GasLimit
	}
	if p.gas != nil {
		cost, err := p.gas.GasCostInToken(ctx, token, units)
		if err == nil {
			return cost
		}
		p.logger.Debug("gas conversion failed, using haircut", slog.String("error", err.Error()))
	}
	return gasHaircut(quote.OutputAmount)
}

func (p *Pipeline) buildOrder(req domain.QuoteRequest, maker common.Address, effective *big.Int) (domain.Order, error) {
	salt, err := p.salt()
	if err != nil {
		return domain.Order{}, fmt.Errorf("generate salt: %w", err)
	}
	now := p.now()
	return domain.Order{
		Offerer:      maker,
		InputToken:   req.OutputToken,
		InputAmount:  effective,
		OutputToken:  req.InputToken,
		OutputAmount: new(big.Int).Set(req.InputAmount),
		Recipient:    maker,
		Zone:         cloneOrZero(p.cfg.Zone),
		ChainID:      req.ChainID,
		StartTime:    uint32(now.Unix()),
		EndTime:      uint32(now.Add(p.cfg.OrderTTL).Unix()),
		Counter:      cloneOrZero(p.cfg.Counter),
		Salt:         salt,
	}, nil
}

// stage returns the pre-calldata that finances the maker's side at fill time:
// an approval of the request's input token to the quoter's target (skipped
// when already in place) followed by the quoter's swap call.
func (p *Pipeline) stage(ctx context.Context, req domain.QuoteRequest, quote domain.Quote, maker common.Address) ([]domain.Call, error) {
	if !quote.HasCall() || *quote.To == maker {
		return nil, nil
	}
	target := *quote.To

	var pre []domain.Call
	// With a vault the approval executes atomically with the swap, so it is
	// always staged; the cache only tracks the wallet's standing approvals.
	if p.cfg.HasVault() || p.allowances == nil || !p.allowances.Sufficient(ctx, req.InputToken, target, req.InputAmount) {
		approve, err := chain.ApproveCall(req.InputToken, target, req.InputAmount)
		if err != nil {
			return nil, err
		}
		pre = append(pre, approve)
	}
	return append(pre, domain.Call{To: target, Value: cloneOrZero(quote.Value), Data: quote.Data}), nil
}

// runApprovals executes the approval calls in pre from the wallet. Any other
// call is skipped.
func (p *Pipeline) runApprovals(ctx context.Context, pre []domain.Call) error {
	for _, call := range pre {
		spender, amount, ok := decodeApprove(call.Data)
		if !ok {
			continue
		}
		if p.sender == nil {
			return fmt.Errorf("approve %s: %w: no transaction sender", call.To.Hex(), domain.ErrNotInitialized)
		}
		txHash, err := p.sender.Send(ctx, call)
		if err != nil {
			return fmt.Errorf("approve %s for %s: %w", call.To.Hex(), spender.Hex(), err)
		}
		if p.allowances != nil {
			p.allowances.Record(call.To, spender, amount)
		}
		p.logger.Info("approval executed",
			slog.String("token", call.To.Hex()),
			slog.String("spender", spender.Hex()),
			slog.String("tx_hash", txHash.Hex()),
		)
	}
	return nil
}

// cancel withdraws an untaken order and drops its record. A record a fill
// consumed, or one restored as failed after settlement, is left alone.
func (p *Pipeline) cancel(hash domain.OrderHash, chainID uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log := p.logger.With(slog.String("order_hash", hash.Hex()))

	if err := p.placer.CancelOrder(ctx, hash); err != nil {
		metrics.OrdersCancelled.WithLabelValues("error").Inc()
		log.Warn("cancel order failed", slog.String("error", err.Error()))
	} else {
		metrics.OrdersCancelled.WithLabelValues("ok").Inc()
	}

	if !p.ledger.ExpirePending(hash) {
		log.Debug("cancel timer fired after fill")
		return
	}
	log.Info("order cancelled after timeout")
	p.publish(ctx, domain.Lifecycle{Event: domain.LifecycleOrderCancelled, OrderHash: hash, ChainID: chainID})
}

// record persists and announces a placed order. Failures are logged only.
func (p *Pipeline) record(ctx context.Context, req domain.QuoteRequest, quote domain.Quote, signed domain.SignedOrder) {
	if p.quotes != nil {
		err := p.quotes.Insert(ctx, domain.QuoteRecord{
			OrderHash:    signed.Hash,
			ChainID:      req.ChainID,
			Quoter:       p.quoter.Name(),
			InputToken:   req.InputToken.Hex(),
			InputAmount:  req.InputAmount.String(),
			OutputToken:  req.OutputToken.Hex(),
			OutputAmount: signed.Order.InputAmount.String(),
			QuotedAmount: quote.OutputAmount.String(),
			SpreadBips:   p.cfg.SpreadBips,
			Signature:    common.Bytes2Hex(signed.Signature),
			CreatedAt:    p.now().UTC(),
		})
		if err != nil {
			p.logger.Warn("persist quote failed", slog.String("order_hash", signed.Hash.Hex()), slog.String("error", err.Error()))
		}
	}
	p.publish(ctx, domain.Lifecycle{Event: domain.LifecycleOrderSigned, OrderHash: signed.Hash, ChainID: req.ChainID})
}

func (p *Pipeline) publish(ctx context.Context, ev domain.Lifecycle) {
	if p.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	if err := p.events.PublishLifecycle(ctx, ev); err != nil {
		p.logger.Warn("publish lifecycle event failed",
			slog.String("event", string(ev.Event)),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) alert(ctx context.Context, event, title, message string) {
	if p.alerter == nil {
		return
	}
	if err := p.alerter.Notify(ctx, event, title, message); err != nil {
		p.logger.Debug("notify failed", slog.String("error", err.Error()))
	}
}

// decodeApprove recognises ERC20 approve calldata.
func decodeApprove(data []byte) (common.Address, *big.Int, bool) {
	method, ok := chain.ERC20ABI().Methods["approve"]
	if !ok || len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return common.Address{}, nil, false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return common.Address{}, nil, false
	}
	spender, ok1 := args[0].(common.Address)
	amount, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, false
	}
	return spender, amount, true
}

var maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)

func randomSalt() (*big.Int, error) {
	return rand.Int(rand.Reader, maxSalt)
}

func cloneOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
