// Package jsonrpc holds the JSON-RPC 2.0 envelopes shared by the feed
// connection and the settlement backend client, plus a small HTTP client.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Version is the only protocol version spoken.
const Version = "2.0"

// Request is an outbound call. ID is kept raw so string and integer ids
// round-trip unchanged.
type Request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request with a fresh string id.
func NewRequest(method string, params any) (Request, error) {
	return NewRequestWithID(uuid.NewString(), method, params)
}

// NewRequestWithID builds a request with the given id.
func NewRequestWithID(id string, method string, params any) (Request, error) {
	req := Request{
		ID:      json.RawMessage(strconv.Quote(id)),
		JSONRPC: Version,
		Method:  method,
	}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return Request{}, fmt.Errorf("jsonrpc: marshal params for %s: %w", method, err)
		}
		req.Params = payload
	}
	return req, nil
}

// Error is a JSON-RPC error object, surfaced to callers as a typed failure.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("RPC error %d - %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("RPC error %d - %s", e.Code, e.Message)
}

// Response is a reply to a Request.
type Response struct {
	ID      json.RawMessage `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Decode unmarshals the result into v, or returns the response error.
func (r Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("jsonrpc: decode result: %w", err)
	}
	return nil
}
