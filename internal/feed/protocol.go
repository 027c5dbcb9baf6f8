package feed

import (
	"bytes"
	"encoding/json"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/jsonrpc"
)

// inbound is a server message: either a subscription acknowledgement, an
// error, or an event notification whose result is {type, data}.
type inbound struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *jsonrpc.Error  `json:"error"`
}

type eventResult struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// decodeEvent extracts the event from an inbound message. ok is false for
// messages that carry no event (acks and bare results).
func decodeEvent(msg inbound) (ev eventResult, ok bool, err error) {
	trimmed := bytes.TrimSpace(msg.Result)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return eventResult{}, false, nil
	}
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return eventResult{}, false, err
	}
	if ev.Type == "" {
		return eventResult{}, false, nil
	}
	return ev, true, nil
}
