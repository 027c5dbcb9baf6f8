package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// EventsHandler pages through the lifecycle event stream.
type EventsHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading stream from bus.
func NewEventsHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, stream: stream, logger: logger}
}

type streamEvent struct {
	ID    string           `json:"id"`
	Event domain.Lifecycle `json:"event"`
}

// List returns lifecycle events after the given stream id.
// GET /api/events?after=<id>&limit=100
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, parseLimit(r, 100))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read events")
		return
	}

	out := make([]streamEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.Lifecycle
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			continue
		}
		out = append(out, streamEvent{ID: m.ID, Event: ev})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
