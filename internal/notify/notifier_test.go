package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	var bodies []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier([]Sender{NewDiscordSender(srv.URL)}, DefaultEvents, discard())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventQuoteError, "Quote failed", "boom"))
	require.NoError(t, n.Notify(ctx, EventSettlementFailed, "Settlement failed", "reverted"))

	require.Len(t, bodies, 1)
	assert.Equal(t, "**Settlement failed**\nreverted", bodies[0]["content"])
}

func TestTelegramSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unexpected status 400"))
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventSettlementFailed, "t", "m"))
}

func TestSettlementMessage(t *testing.T) {
	msg := SettlementMessage(domain.SettlementRecord{
		OrderHash: common.HexToHash("0x01"),
		ChainID:   1,
		Calls:     3,
		ViaVault:  true,
		Error:     "transaction reverted",
	})
	assert.Contains(t, msg, "chain: 1, calls: 3, vault: true")
	assert.Contains(t, msg, "error: transaction reverted")
	assert.NotContains(t, msg, "tx:")
}
