package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/executor"
	"github.com/alanyoungcy/rfqmaker/internal/ledger"
	"github.com/alanyoungcy/rfqmaker/internal/server/handler"
)

const apiKey = "s3cret"

type fakeRetrier struct{ err error }

func (f fakeRetrier) Retry(context.Context, domain.OrderHash) error { return f.err }

func newTestServer(t *testing.T, l *ledger.Ledger, retrier handler.Retrier) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"redis": func(context.Context) error { return nil },
		}, logger),
		Status: &handler.StatusHandler{
			Mode:    "maker",
			ChainID: 1,
			Feed:    func() string { return "open" },
			Pending: l.Len,
		},
		Executions: handler.NewExecutionHandler(l, retrier, nil, logger),
	}, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func seeded(t *testing.T) (*ledger.Ledger, domain.OrderHash) {
	t.Helper()
	var h domain.OrderHash
	h[31] = 5
	l := ledger.New()
	require.NoError(t, l.Create(domain.PendingExecution{
		OrderHash: h,
		ChainID:   1,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	return l, h
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	l, _ := seeded(t)
	ts := newTestServer(t, l, nil)

	assert.Equal(t, http.StatusOK, do(t, "GET", ts.URL+"/api/health", false).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, "GET", ts.URL+"/metrics", false).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, "GET", ts.URL+"/api/executions", false).StatusCode)
}

func TestListAndGetExecutions(t *testing.T) {
	l, h := seeded(t)
	ts := newTestServer(t, l, nil)

	resp := do(t, "GET", ts.URL+"/api/executions", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Count      int                       `json:"count"`
		Executions []domain.PendingExecution `json:"executions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, h, list.Executions[0].OrderHash)

	assert.Equal(t, http.StatusOK, do(t, "GET", ts.URL+"/api/executions/"+h.Hex(), true).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, "GET", ts.URL+"/api/executions/0x12", true).StatusCode)

	var other domain.OrderHash
	other[0] = 1
	assert.Equal(t, http.StatusNotFound, do(t, "GET", ts.URL+"/api/executions/"+other.Hex(), true).StatusCode)
}

func TestRetryStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		retrier handler.Retrier
		want    int
	}{
		{name: "settled", retrier: fakeRetrier{}, want: http.StatusOK},
		{name: "not failed", retrier: fakeRetrier{err: fmt.Errorf("wrap: %w", executor.ErrNotRetryable)}, want: http.StatusConflict},
		{name: "missing", retrier: fakeRetrier{err: domain.ErrNotFound}, want: http.StatusNotFound},
		{name: "reverted", retrier: fakeRetrier{err: errors.New("reverted")}, want: http.StatusBadGateway},
		{name: "observe mode", retrier: nil, want: http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, h := seeded(t)
			ts := newTestServer(t, l, tt.retrier)
			resp := do(t, "POST", ts.URL+"/api/executions/"+h.Hex()+"/retry", true)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestExpireExecution(t *testing.T) {
	l, h := seeded(t)
	ts := newTestServer(t, l, nil)

	assert.Equal(t, http.StatusNoContent, do(t, "DELETE", ts.URL+"/api/executions/"+h.Hex(), true).StatusCode)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, http.StatusNotFound, do(t, "DELETE", ts.URL+"/api/executions/"+h.Hex(), true).StatusCode)
}

func TestStatusAndFeed(t *testing.T) {
	l, _ := seeded(t)
	ts := newTestServer(t, l, nil)

	resp := do(t, "GET", ts.URL+"/api/status", true)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "maker", body["mode"])
	assert.Equal(t, "open", body["feed"])
	assert.EqualValues(t, 1, body["pending_executions"])

	resp = do(t, "GET", ts.URL+"/api/feed", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
