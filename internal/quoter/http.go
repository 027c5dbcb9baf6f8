package quoter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// HTTPQuoterName is the registry name of HTTPQuoter.
const HTTPQuoterName = "http"

// HTTPQuoter prices swaps against a generic aggregator-style REST endpoint:
//
//	GET {url}/quote?chainId=&inputToken=&outputToken=&inputAmount=&fromAddress=
//
// A request for an input-amount quote sends outputAmount instead of
// inputAmount. The response carries decimal-string amounts and an optional
// swap call (to, value, data).
type HTTPQuoter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPQuoter creates an HTTPQuoter.
func NewHTTPQuoter(cfg Config) (*HTTPQuoter, error) {
	if cfg.URL == "" {
		return nil, errors.New("quoter/http: url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPQuoter{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Quoter.
func (q *HTTPQuoter) Name() string { return HTTPQuoterName }

// GetOutputAmountQuote implements Quoter.
func (q *HTTPQuoter) GetOutputAmountQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if req.InputAmount == nil || req.InputAmount.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("quoter/http: %w: input amount required", domain.ErrInvalidOrder)
	}
	params := q.baseParams(req)
	params.Set("inputAmount", req.InputAmount.String())
	return q.fetch(ctx, params)
}

// GetInputAmountQuote implements Quoter.
func (q *HTTPQuoter) GetInputAmountQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if req.OutputAmount == nil || req.OutputAmount.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("quoter/http: %w: output amount required", domain.ErrInvalidOrder)
	}
	params := q.baseParams(req)
	params.Set("outputAmount", req.OutputAmount.String())
	return q.fetch(ctx, params)
}

func (q *HTTPQuoter) baseParams(req domain.QuoteRequest) url.Values {
	params := url.Values{}
	params.Set("chainId", strconv.FormatUint(uint64(req.ChainID), 10))
	params.Set("inputToken", req.InputToken.Hex())
	params.Set("outputToken", req.OutputToken.Hex())
	if req.FromAddress != (common.Address{}) {
		params.Set("fromAddress", req.FromAddress.Hex())
	}
	return params
}

// quoteResponse is the wire form of a quote.
type quoteResponse struct {
	OutputAmount string          `json:"outputAmount"`
	InputAmount  string          `json:"inputAmount"`
	Price        decimal.Decimal `json:"price"`
	Gas          json.Number     `json:"gas"`
	To           *common.Address `json:"to"`
	Value        string          `json:"value"`
	Data         hexutil.Bytes   `json:"data"`
}

func (q *HTTPQuoter) fetch(ctx context.Context, params url.Values) (domain.Quote, error) {
	reqURL := q.baseURL + "/quote?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quoter/http: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if q.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+q.apiKey)
	}

	resp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quoter/http: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quoter/http: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Quote{}, fmt.Errorf("quoter/http: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusNotImplemented:
		return domain.Quote{}, ErrUnsupported
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.Quote{}, fmt.Errorf("quoter/http: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return domain.Quote{}, fmt.Errorf("quoter/http: decode quote: %w", err)
	}
	return qr.toDomain()
}

func (qr quoteResponse) toDomain() (domain.Quote, error) {
	amount := qr.OutputAmount
	if amount == "" {
		amount = qr.InputAmount
	}
	out, err := parseTokenAmount(amount)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quoter/http: amount: %w", err)
	}
	value, err := parseTokenAmount(qr.Value)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quoter/http: value: %w", err)
	}

	var gas uint64
	if qr.Gas != "" {
		g, err := strconv.ParseUint(qr.Gas.String(), 10, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("quoter/http: gas: %w", err)
		}
		gas = g
	}

	return domain.Quote{
		OutputAmount: out,
		Price:        qr.Price,
		Gas:          gas,
		To:           qr.To,
		Value:        value,
		Data:         qr.Data,
	}, nil
}

// parseTokenAmount accepts integer base-unit amounts written either as plain
// integers or as decimals with an all-zero fraction ("1000.0"). Anything with
// a real fractional part is rejected.
func parseTokenAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOrder, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", domain.ErrInvalidOrder, s)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("%w: fractional base-unit amount %q", domain.ErrInvalidOrder, s)
	}
	return d.BigInt(), nil
}
