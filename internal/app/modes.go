package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/rfqmaker/internal/archive"
	"github.com/alanyoungcy/rfqmaker/internal/chain"
	"github.com/alanyoungcy/rfqmaker/internal/crypto"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/executor"
	"github.com/alanyoungcy/rfqmaker/internal/feed"
	"github.com/alanyoungcy/rfqmaker/internal/notify"
	"github.com/alanyoungcy/rfqmaker/internal/pipeline"
	"github.com/alanyoungcy/rfqmaker/internal/platform/backend"
	"github.com/alanyoungcy/rfqmaker/internal/quoter"
	"github.com/alanyoungcy/rfqmaker/internal/server"
	"github.com/alanyoungcy/rfqmaker/internal/server/handler"
)

// Topic buffers. Quote requests are bursty; fills are rare and must not be
// dropped.
const (
	quoteBuffer = 256
	fillBuffer  = 1024
	logBuffer   = 64
)

// MakerMode runs the full maker: the feed, the quote pipeline, the settlement
// executor, the ledger sweeper, the archive job and the HTTP server.
func (a *App) MakerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting maker mode")

	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("maker mode: load signer: %w", err)
	}
	chainID := uint32(a.cfg.Chain.ChainID)

	chainClient, err := chain.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("maker mode: %w", err)
	}
	a.closers = append(a.closers, chainClient.Close)
	if err := checkChainID(ctx, chainClient, chainID); err != nil {
		return fmt.Errorf("maker mode: %w", err)
	}
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := chainClient.ChainID(ctx)
		return err
	}

	var auth *crypto.RequestAuth
	if a.cfg.Backend.APIKey != "" {
		auth = &crypto.RequestAuth{Key: a.cfg.Backend.APIKey, Secret: a.cfg.Backend.APISecret}
	}
	backendClient := backend.NewClient(a.cfg.Backend.URL, a.cfg.Backend.Timeout.Duration, signer, auth)

	transactor := chain.NewTransactor(chainClient, signer, backendClient, chain.TransactorConfig{
		ChainID:        chainID,
		GasLimit:       a.cfg.Chain.GasLimit,
		SubmitVia:      a.cfg.Chain.SubmitVia,
		ReceiptTimeout: a.cfg.Chain.ReceiptTimeout.Duration,
	}, a.logger)

	q, err := quoter.NewRegistry().New(a.cfg.Quoter.Name, quoter.Config{
		URL:     a.cfg.Quoter.URL,
		APIKey:  a.cfg.Quoter.APIKey,
		Timeout: a.cfg.Quoter.Timeout.Duration,
	})
	if err != nil {
		return fmt.Errorf("maker mode: %w", err)
	}

	counter, zone := a.cfg.CounterZone()
	vault := a.cfg.Vault()
	pipe := pipeline.New(pipeline.Config{
		ChainID:       chainID,
		Wallet:        signer.Address(),
		Vault:         vault,
		SpreadBips:    a.cfg.Maker.SpreadBips,
		SponsorGas:    a.cfg.Maker.SponsorGas,
		GasLimit:      a.cfg.Chain.GasLimit,
		CancelAfter:   a.cfg.Maker.CancelAfter.Duration,
		OrderTTL:      a.cfg.Maker.OrderTTL.Duration,
		ExpiryGrace:   a.cfg.Maker.ExpiryGrace.Duration,
		Counter:       counter,
		Zone:          zone,
		MaxConcurrent: a.cfg.Maker.MaxConcurrentQuotes,
		RateLimit:     a.cfg.Maker.QuoteRateLimit,
	}, q, signer, backendClient, deps.Ledger, a.logger)
	if a.cfg.Chain.NativeToken != "" {
		pipe.SetGasPricer(pipeline.NewGasPricer(chainClient, q, common.HexToAddress(a.cfg.Chain.NativeToken), chainID))
	}
	if vault == (common.Address{}) {
		// Without a vault the wallet approves the settlement contract itself.
		pipe.SetAllowances(pipeline.NewAllowanceCache(signer.Address(), chainClient), transactor)
	}
	if deps.RateLimiter != nil {
		pipe.SetRateLimiter(deps.RateLimiter)
	}
	if deps.QuoteStore != nil {
		pipe.SetQuoteStore(deps.QuoteStore)
	}
	if deps.Events != nil {
		pipe.SetEventPublisher(deps.Events)
	}
	if deps.Notifier.Enabled() {
		pipe.SetAlerter(deps.Notifier)
	}

	exec := executor.NewExecutor(executor.Config{
		Vault:         vault,
		SettleTimeout: a.cfg.Maker.SettleTimeout.Duration,
	}, deps.Ledger, transactor, a.logger)
	if deps.LockManager != nil {
		exec.SetLockManager(deps.LockManager)
	}
	if deps.SettlementStore != nil {
		exec.SetStores(deps.SettlementStore, deps.AuditStore)
	}
	if deps.Events != nil {
		exec.SetEventPublisher(deps.Events)
	}
	if deps.Notifier.Enabled() {
		exec.SetAlerter(deps.Notifier)
	}

	conn := a.newFeed()
	requests, cancelRequests := conn.Events().QuoteRequested.Subscribe(quoteBuffer)
	defer cancelRequests()
	fills, cancelFills := conn.Events().OrderToExecute.Subscribe(fillBuffer)
	defer cancelFills()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conn.Run(ctx)
	})
	g.Go(func() error {
		return pipe.Run(ctx, requests)
	})
	g.Go(func() error {
		return exec.Run(ctx, fills)
	})
	g.Go(func() error {
		return deps.Ledger.RunSweeper(ctx, a.cfg.Maker.SweepInterval.Duration, a.logger)
	})
	a.logOrderUpdates(ctx, g, conn.Events())
	a.watchReconnects(ctx, g, conn.Events(), deps.Notifier)
	a.startArchive(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, conn, exec, signer.Address())

	a.logger.InfoContext(ctx, "maker running",
		slog.String("wallet", signer.Address().Hex()),
		slog.String("vault", vault.Hex()),
		slog.Uint64("chain_id", uint64(chainID)),
		slog.String("submit_via", a.cfg.Chain.SubmitVia),
	)
	return g.Wait()
}

// ObserveMode connects to the feed, logs what it sees and serves the HTTP API.
// It never quotes or settles.
func (a *App) ObserveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observe mode")

	conn := a.newFeed()
	requests, cancelRequests := conn.Events().QuoteRequested.Subscribe(logBuffer)
	defer cancelRequests()
	fills, cancelFills := conn.Events().OrderToExecute.Subscribe(logBuffer)
	defer cancelFills()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conn.Run(ctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case req := <-requests:
				a.logger.InfoContext(ctx, "quote requested",
					slog.Uint64("chain_id", uint64(req.ChainID)),
					slog.String("input_token", req.InputToken.Hex()),
					slog.String("output_token", req.OutputToken.Hex()),
					slog.String("input_amount", domain.FormatAmount(req.InputAmount)),
					slog.String("output_amount", domain.FormatAmount(req.OutputAmount)),
				)
			case fill := <-fills:
				a.logger.InfoContext(ctx, "order to execute",
					slog.String("maker_order", fill.MakerOrderHash.Hex()),
					slog.String("taker_order", fill.TakerOrderHash.Hex()),
				)
			}
		}
	})
	a.logOrderUpdates(ctx, g, conn.Events())
	a.watchReconnects(ctx, g, conn.Events(), deps.Notifier)
	a.startHTTPServer(ctx, g, deps, conn, nil, common.Address{})

	return g.Wait()
}

func (a *App) newFeed() *feed.Conn {
	conn := feed.NewConn(feed.Config{
		URL:            a.cfg.Feed.URL,
		PingInterval:   a.cfg.Feed.PingInterval.Duration,
		ReconnectDelay: a.cfg.Feed.ReconnectDelay.Duration,
	}, a.logger)
	if a.cfg.Feed.SubscribeMethod != "" {
		// Only fails on unencodable params, which a string list never is.
		_ = conn.Subscribe(a.cfg.Feed.SubscribeMethod, a.cfg.Feed.SubscribeParams)
	}
	return conn
}

// logOrderUpdates logs order status changes from the feed at debug level.
func (a *App) logOrderUpdates(ctx context.Context, g *errgroup.Group, ev *feed.Events) {
	type source struct {
		name  string
		topic *feed.Topic[domain.OrderUpdate]
	}
	for _, s := range []source{
		{"created", ev.OrderCreated},
		{"cancelled", ev.OrderCancelled},
		{"taken", ev.OrderTaken},
		{"fulfilled", ev.OrderFulfilled},
	} {
		ch, cancel := s.topic.Subscribe(logBuffer)
		g.Go(func() error {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return nil
				case u := <-ch:
					a.logger.DebugContext(ctx, "order update",
						slog.String("status", s.name),
						slog.String("order_hash", u.OrderHash.Hex()),
					)
				}
			}
		})
	}
}

// watchReconnects notifies the operator each time the feed reopens after the
// first connection.
func (a *App) watchReconnects(ctx context.Context, g *errgroup.Group, ev *feed.Events, n *notify.Notifier) {
	if !n.Enabled() {
		return
	}
	ready, cancel := ev.Ready.Subscribe(4)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case r := <-ready:
				if r.Attempt <= 1 {
					continue
				}
				msg := fmt.Sprintf("Feed %s reopened on attempt %d at %s", a.cfg.Feed.URL, r.Attempt, r.At.UTC().Format(time.RFC3339))
				if err := n.Notify(ctx, notify.EventFeedReconnected, "Feed reconnected", msg); err != nil {
					a.logger.WarnContext(ctx, "reconnect notification failed", slog.String("error", err.Error()))
				}
			}
		}
	})
}

func (a *App) startArchive(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	job := archive.NewJob(deps.Archiver, a.cfg.S3.RetentionDays, a.logger)
	g.Go(func() error {
		return job.RunCron(ctx, a.cfg.S3.ArchiveCron)
	})
}

// startHTTPServer serves the operator API when enabled. exec is nil in observe
// mode, which disables retries.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	conn *feed.Conn,
	exec *executor.Executor,
	wallet common.Address,
) {
	if !a.cfg.Server.Enabled {
		return
	}

	maker := wallet
	if vault := a.cfg.Vault(); vault != (common.Address{}) {
		maker = vault
	}

	var retrier handler.Retrier
	if exec != nil {
		retrier = exec
	}
	var settlements handler.SettlementLister
	if deps.SettlementStore != nil {
		settlements = deps.SettlementStore
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: &handler.StatusHandler{
			Mode:    a.cfg.Mode,
			Maker:   maker.Hex(),
			ChainID: uint32(a.cfg.Chain.ChainID),
			Vault:   a.cfg.Vault().Hex(),
			Feed:    func() string { return conn.State().String() },
			Pending: deps.Ledger.Len,
		},
		Executions: handler.NewExecutionHandler(deps.Ledger, retrier, settlements, a.logger),
	}
	if stream := eventsStream(a.cfg.Events); stream != "" && deps.SignalBus != nil {
		handlers.Events = handler.NewEventsHandler(deps.SignalBus, stream, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Run(ctx)
	})
}

// checkChainID fails when the node serves a different chain than configured,
// since orders signed for one chain cannot settle on another.
func checkChainID(ctx context.Context, c *chain.Client, want uint32) error {
	got, err := c.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if got.Cmp(new(big.Int).SetUint64(uint64(want))) != 0 {
		return fmt.Errorf("node chain id %s does not match configured %d", got, want)
	}
	return nil
}
