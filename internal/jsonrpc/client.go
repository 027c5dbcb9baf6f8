package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// HeaderFunc returns extra headers for a request body about to be sent.
type HeaderFunc func(method, path, body string) map[string]string

// Client posts JSON-RPC requests to a single HTTP endpoint.
type Client struct {
	url        string
	path       string
	httpClient *http.Client
	headers    HeaderFunc
}

// NewClient creates a Client for url. path is the request path used when
// computing authentication headers.
func NewClient(url, path string, timeout time.Duration, headers HeaderFunc) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		path:       path,
		httpClient: &http.Client{Timeout: timeout},
		headers:    headers,
	}
}

// Call invokes method with params and decodes the result into result (which
// may be nil). A JSON-RPC error object is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	req, err := NewRequest(method, params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("jsonrpc: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.headers != nil {
		for k, v := range c.headers(http.MethodPost, c.path, string(body)) {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("jsonrpc: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("jsonrpc: %s: read response: %w", method, err)
	}

	// A JSON-RPC error body takes precedence over the HTTP status.
	var rpcResp Response
	if jsonErr := json.Unmarshal(respBody, &rpcResp); jsonErr == nil && rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("jsonrpc: %s: %w", method, err)
	}
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("jsonrpc: %s: decode response: %w", method, err)
	}
	return rpcResp.Decode(result)
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
