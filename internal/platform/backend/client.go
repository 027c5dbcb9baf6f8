// Package backend is the JSON-RPC client for the RFQ settlement backend: it
// places and cancels signed orders and relays raw transactions.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/rfqmaker/internal/crypto"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/jsonrpc"
)

// JSON-RPC method names.
const (
	MethodPlaceOrder      = "rfq_placeOrder"
	MethodCancelOrder     = "rfq_cancelOrder"
	MethodSendTransaction = "rfq_sendTransaction"
)

// Client talks to the settlement backend.
type Client struct {
	rpc    *jsonrpc.Client
	signer crypto.MessageSigner
}

// NewClient creates a backend client for baseURL. auth may be nil when the
// backend accepts unauthenticated requests.
func NewClient(baseURL string, timeout time.Duration, signer crypto.MessageSigner, auth *crypto.RequestAuth) *Client {
	path := "/"
	if u, err := url.Parse(baseURL); err == nil && u.Path != "" {
		path = u.Path
	}

	var headers jsonrpc.HeaderFunc
	if auth != nil && auth.Key != "" {
		address := signer.Address().Hex()
		headers = func(method, p, body string) map[string]string {
			return auth.Headers(address, method, p, body)
		}
	}

	return &Client{
		rpc:    jsonrpc.NewClient(baseURL, path, timeout, headers),
		signer: signer,
	}
}

// PlaceOrderResult is the backend's acknowledgement of a placed order.
type PlaceOrderResult struct {
	OrderHash domain.OrderHash `json:"orderHash"`
}

// PlaceOrder publishes a signed order.
func (c *Client) PlaceOrder(ctx context.Context, order domain.SignedOrder) error {
	var res PlaceOrderResult
	if err := c.rpc.Call(ctx, MethodPlaceOrder, order, &res); err != nil {
		return fmt.Errorf("backend: place order %s: %w", order.Hash.Hex(), err)
	}
	if res.OrderHash != (domain.OrderHash{}) && res.OrderHash != order.Hash {
		return fmt.Errorf("backend: place order: %w: backend hashed %s, local %s",
			domain.ErrInvalidOrder, res.OrderHash.Hex(), order.Hash.Hex())
	}
	return nil
}

type cancelParams struct {
	OrderHash domain.OrderHash `json:"orderHash"`
	Signature hexutil.Bytes    `json:"signature"`
}

// CancelOrder withdraws a previously placed order. The request carries a
// personal signature over the order hash to prove ownership.
func (c *Client) CancelOrder(ctx context.Context, hash domain.OrderHash) error {
	sig, err := c.signer.SignMessage(hash.Bytes())
	if err != nil {
		return fmt.Errorf("backend: cancel order %s: %w: %v", hash.Hex(), domain.ErrSigningFailed, err)
	}
	if err := c.rpc.Call(ctx, MethodCancelOrder, cancelParams{OrderHash: hash, Signature: sig}, nil); err != nil {
		return fmt.Errorf("backend: cancel order %s: %w", hash.Hex(), err)
	}
	return nil
}

type sendTxParams struct {
	ChainID        uint32        `json:"chainId"`
	RawTransaction hexutil.Bytes `json:"rawTransaction"`
}

// SendTransaction relays a signed raw transaction and returns its hash as
// reported by the backend.
func (c *Client) SendTransaction(ctx context.Context, chainID uint32, rawTx []byte) (string, error) {
	var txHash string
	params := sendTxParams{ChainID: chainID, RawTransaction: rawTx}
	if err := c.rpc.Call(ctx, MethodSendTransaction, params, &txHash); err != nil {
		return "", fmt.Errorf("backend: send transaction: %w", err)
	}
	return txHash, nil
}
