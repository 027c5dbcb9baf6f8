package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

func TestClientCallDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, Version, req.JSONRPC)
		assert.Equal(t, "echo", req.Method)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))

		_ = json.NewEncoder(w).Encode(Response{ID: req.ID, JSONRPC: Version, Result: req.Params})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/", time.Second, func(method, path, body string) map[string]string {
		return map[string]string{"X-Test": "yes"}
	})

	var out map[string]string
	require.NoError(t, c.Call(context.Background(), "echo", map[string]string{"a": "b"}, &out))
	assert.Equal(t, map[string]string{"a": "b"}, out)
}

func TestClientCallReturnsTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32000,"message":"order expired"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/", time.Second, nil)
	err := c.Call(context.Background(), "rfq_placeOrder", nil, nil)

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "RPC error -32000 - order expired", rpcErr.Error())
}

func TestClientCallMapsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/", time.Second, nil)
	err := c.Call(context.Background(), "rfq_cancelOrder", nil, nil)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
