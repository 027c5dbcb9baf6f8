package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// Submission routes.
const (
	SubmitViaRPC     = "rpc"
	SubmitViaBackend = "backend"
)

// TxSigner signs transactions for the maker wallet.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Relay forwards a signed raw transaction, e.g. through the settlement backend.
type Relay interface {
	SendTransaction(ctx context.Context, chainID uint32, rawTx []byte) (string, error)
}

// TransactorConfig configures a Transactor.
type TransactorConfig struct {
	ChainID        uint32
	GasLimit       uint64 // ceiling for estimated gas; 0 means no ceiling
	SubmitVia      string
	ReceiptTimeout time.Duration
}

// Transactor signs and submits transactions from the maker wallet, then waits
// for them to be mined. Sends are serialised from nonce assignment to
// submission; waiting for receipts runs concurrently.
type Transactor struct {
	client *Client
	signer TxSigner
	relay  Relay
	cfg    TransactorConfig
	logger *slog.Logger

	mu        sync.Mutex
	nextNonce uint64
	haveNonce bool
}

// NewTransactor creates a Transactor. relay is only used when cfg.SubmitVia
// is SubmitViaBackend.
func NewTransactor(client *Client, signer TxSigner, relay Relay, cfg TransactorConfig, logger *slog.Logger) *Transactor {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	return &Transactor{
		client: client,
		signer: signer,
		relay:  relay,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "transactor")),
	}
}

// Send submits call as a legacy EIP-155 transaction and blocks until it is
// mined. It returns the transaction hash; a reverted transaction returns the
// hash together with an error wrapping ErrReverted.
func (t *Transactor) Send(ctx context.Context, call domain.Call) (common.Hash, error) {
	from := t.signer.Address()
	value := nonNil(call.Value)

	gas, err := t.client.node.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate gas: %w", err)
	}
	// 20% headroom over the estimate, capped by the configured ceiling.
	gas += gas / 5
	if t.cfg.GasLimit > 0 && gas > t.cfg.GasLimit {
		gas = t.cfg.GasLimit
	}

	signed, err := t.signAndSubmit(ctx, from, call, value, gas)
	if err != nil {
		return common.Hash{}, err
	}

	t.logger.Info("transaction submitted",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("to", call.To.Hex()),
		slog.Uint64("nonce", signed.Nonce()),
		slog.Uint64("gas", gas),
		slog.String("via", t.cfg.SubmitVia),
	)

	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.ReceiptTimeout)
	defer cancel()
	if _, err := t.client.WaitMined(waitCtx, signed.Hash()); err != nil {
		return signed.Hash(), err
	}
	return signed.Hash(), nil
}

// signAndSubmit assigns the next nonce, signs and submits under t.mu. The
// nonce is the larger of the node's pending nonce and the one after our last
// submission, so a node that has not yet seen a relayed transaction cannot
// hand out its nonce twice.
func (t *Transactor) signAndSubmit(ctx context.Context, from common.Address, call domain.Call, value *big.Int, gas uint64) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.client.node.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: get nonce: %w", err)
	}
	if t.haveNonce && t.nextNonce > nonce {
		nonce = t.nextNonce
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTransaction(nonce, call.To, value, gas, gasPrice, call.Data)
	signed, err := t.signer.SignTx(tx, new(big.Int).SetUint64(uint64(t.cfg.ChainID)))
	if err != nil {
		return nil, fmt.Errorf("chain: %w: %v", domain.ErrSigningFailed, err)
	}

	if err := t.submit(ctx, signed); err != nil {
		// The nonce may or may not be consumed; ask the node next time.
		t.haveNonce = false
		return nil, err
	}
	t.nextNonce, t.haveNonce = nonce+1, true
	return signed, nil
}

func (t *Transactor) submit(ctx context.Context, tx *types.Transaction) error {
	if t.cfg.SubmitVia == SubmitViaBackend && t.relay != nil {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return fmt.Errorf("chain: encode tx: %w", err)
		}
		if _, err := t.relay.SendTransaction(ctx, t.cfg.ChainID, raw); err != nil {
			return fmt.Errorf("chain: relay tx: %w", err)
		}
		return nil
	}
	if err := t.client.node.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chain: send tx: %w", err)
	}
	return nil
}
