package quoter

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestHTTPQuoterOutputAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("chainId"))
		assert.Equal(t, tokenA.Hex(), q.Get("inputToken"))
		assert.Equal(t, tokenB.Hex(), q.Get("outputToken"))
		assert.Equal(t, "1000000", q.Get("inputAmount"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"outputAmount":"2000000","price":"2.0","gas":"150000",` +
			`"to":"0x00000000000000000000000000000000000000cc","value":"0","data":"0xabcd"}`))
	}))
	defer srv.Close()

	q, err := NewHTTPQuoter(Config{URL: srv.URL + "/", APIKey: "secret", Timeout: time.Second})
	require.NoError(t, err)

	got, err := q.GetOutputAmountQuote(context.Background(), domain.QuoteRequest{
		InputToken:  tokenA,
		OutputToken: tokenB,
		InputAmount: big.NewInt(1000000),
		ChainID:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), got.OutputAmount.Int64())
	assert.True(t, got.Price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, uint64(150000), got.Gas)
	require.True(t, got.HasCall())
	assert.Equal(t, common.HexToAddress("0xcc"), *got.To)
	assert.Equal(t, []byte{0xab, 0xcd}, got.Data)
}

func TestHTTPQuoterStatusMapping(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotImplemented)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	q, err := NewHTTPQuoter(Config{URL: srv.URL})
	require.NoError(t, err)
	req := domain.QuoteRequest{InputToken: tokenA, OutputToken: tokenB, OutputAmount: big.NewInt(5), ChainID: 1}

	_, err = q.GetInputAmountQuote(context.Background(), req)
	assert.True(t, errors.Is(err, ErrUnsupported))

	status.Store(http.StatusTooManyRequests)
	_, err = q.GetInputAmountQuote(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestHTTPQuoterRequiresAmount(t *testing.T) {
	q, err := NewHTTPQuoter(Config{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = q.GetOutputAmountQuote(context.Background(), domain.QuoteRequest{ChainID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestParseTokenAmount(t *testing.T) {
	v, err := parseTokenAmount("1000.000")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Int64())

	_, err = parseTokenAmount("1000.5")
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = parseTokenAmount("-1")
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{HTTPQuoterName}, r.Names())

	_, err := r.New("nope", Config{})
	assert.Error(t, err)

	q, err := r.New(HTTPQuoterName, Config{URL: "http://localhost"})
	require.NoError(t, err)
	assert.Equal(t, HTTPQuoterName, q.Name())
}
