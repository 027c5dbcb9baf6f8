package backend

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/crypto"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/jsonrpc"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestServer(t *testing.T, handle func(req jsonrpc.Request) jsonrpc.Response) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := handle(req)
		resp.ID, resp.JSONRPC = req.ID, jsonrpc.Version
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOrder(t *testing.T, signer *crypto.Signer) domain.SignedOrder {
	t.Helper()
	o := domain.Order{
		Offerer:      signer.Address(),
		InputToken:   common.HexToAddress("0xB"),
		InputAmount:  big.NewInt(1980000),
		OutputToken:  common.HexToAddress("0xA"),
		OutputAmount: big.NewInt(1000000),
		Recipient:    signer.Address(),
		ChainID:      1,
		EndTime:      100,
		Salt:         big.NewInt(7),
	}
	signed, err := crypto.OrderCodec{}.Sign(signer, o)
	require.NoError(t, err)
	return signed
}

func TestPlaceOrderSendsSignedOrder(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	order := testOrder(t, signer)

	srv := newTestServer(t, func(req jsonrpc.Request) jsonrpc.Response {
		assert.Equal(t, MethodPlaceOrder, req.Method)
		var got domain.SignedOrder
		require.NoError(t, json.Unmarshal(req.Params, &got))
		assert.Equal(t, order.Hash, got.Hash)
		assert.Equal(t, 0, got.Order.InputAmount.Cmp(big.NewInt(1980000)))
		return jsonrpc.Response{Result: json.RawMessage(`{"orderHash":"` + order.Hash.Hex() + `"}`)}
	})

	c := NewClient(srv.URL, time.Second, signer, nil)
	require.NoError(t, c.PlaceOrder(context.Background(), order))
}

func TestPlaceOrderRejectsHashMismatch(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	order := testOrder(t, signer)

	srv := newTestServer(t, func(req jsonrpc.Request) jsonrpc.Response {
		return jsonrpc.Response{Result: json.RawMessage(`{"orderHash":"` + common.HexToHash("0x01").Hex() + `"}`)}
	})

	c := NewClient(srv.URL, time.Second, signer, nil)
	assert.ErrorIs(t, c.PlaceOrder(context.Background(), order), domain.ErrInvalidOrder)
}

func TestCancelOrderProvesOwnership(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	hash := common.HexToHash("0xabc")

	srv := newTestServer(t, func(req jsonrpc.Request) jsonrpc.Response {
		assert.Equal(t, MethodCancelOrder, req.Method)
		var p struct {
			OrderHash common.Hash   `json:"orderHash"`
			Signature hexutil.Bytes `json:"signature"`
		}
		require.NoError(t, json.Unmarshal(req.Params, &p))
		assert.Equal(t, hash, p.OrderHash)

		addr, err := crypto.RecoverMessageSigner(p.OrderHash.Bytes(), p.Signature)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), addr)
		return jsonrpc.Response{Result: json.RawMessage(`true`)}
	})

	c := NewClient(srv.URL, time.Second, signer, nil)
	require.NoError(t, c.CancelOrder(context.Background(), hash))
}

func TestCallSurfacesRPCError(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)

	srv := newTestServer(t, func(req jsonrpc.Request) jsonrpc.Response {
		return jsonrpc.Response{Error: &jsonrpc.Error{Code: -32010, Message: "nonce too low"}}
	})

	c := NewClient(srv.URL, time.Second, signer, nil)
	_, err = c.SendTransaction(context.Background(), 1, []byte{0x01})

	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32010, rpcErr.Code)
}

func TestRequestsCarryAuthHeaders(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)

	var gotKey, gotAddr string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(crypto.HeaderAPIKey)
		gotAddr = r.Header.Get(crypto.HeaderAddress)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":"0xdead"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, signer, &crypto.RequestAuth{Key: "k1", Secret: "s1"})
	txHash, err := c.SendTransaction(context.Background(), 1, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, "0xdead", txHash)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, signer.Address().Hex(), gotAddr)
}
