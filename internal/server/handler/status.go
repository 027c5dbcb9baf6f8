package handler

import (
	"net/http"
)

// StatusHandler serves the maker identity and feed state.
type StatusHandler struct {
	Mode    string
	Maker   string
	ChainID uint32
	Vault   string
	Feed    func() string // current feed state, nil without a feed
	Pending func() int
}

// GetStatus responds with the running mode and maker identity.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":     h.Mode,
		"maker":    h.Maker,
		"chain_id": h.ChainID,
		"vault":    h.Vault,
	}
	if h.Feed != nil {
		resp["feed"] = h.Feed()
	}
	if h.Pending != nil {
		resp["pending_executions"] = h.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFeed responds with the feed connection state.
// GET /api/feed
func (h *StatusHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusNotFound, "feed not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.Feed()})
}
