package feed

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// Ready is published every time the connection opens. Attempt counts
// connection attempts since Run started, starting at 1.
type Ready struct {
	Attempt int
	At      time.Time
}

// Events is the set of typed topics the connection dispatches into.
type Events struct {
	Ready          *Topic[Ready]
	OrderCreated   *Topic[domain.OrderUpdate]
	OrderCancelled *Topic[domain.OrderUpdate]
	OrderTaken     *Topic[domain.OrderUpdate]
	OrderFulfilled *Topic[domain.OrderUpdate]
	OrderToExecute *Topic[domain.DetailsToExecute]
	QuoteRequested *Topic[domain.QuoteRequest]
}

// NewEvents creates the topic set.
func NewEvents() *Events {
	return &Events{
		Ready:          NewTopic[Ready]("ready"),
		OrderCreated:   NewTopic[domain.OrderUpdate](string(domain.EventOrderCreated)),
		OrderCancelled: NewTopic[domain.OrderUpdate](string(domain.EventOrderCancelled)),
		OrderTaken:     NewTopic[domain.OrderUpdate](string(domain.EventOrderTaken)),
		OrderFulfilled: NewTopic[domain.OrderUpdate](string(domain.EventOrderFulfilled)),
		OrderToExecute: NewTopic[domain.DetailsToExecute](string(domain.EventOrderToExecute)),
		QuoteRequested: NewTopic[domain.QuoteRequest](string(domain.EventQuoteRequested)),
	}
}

// dispatcher decodes one event payload and publishes it.
type dispatcher func(data json.RawMessage) error

// dispatchTable maps wire event types to their decoders. Types absent from
// the table are dropped.
func (e *Events) dispatchTable() map[domain.EventType]dispatcher {
	return map[domain.EventType]dispatcher{
		domain.EventOrderCreated:   orderUpdate(domain.EventOrderCreated, e.OrderCreated),
		domain.EventOrderCancelled: orderUpdate(domain.EventOrderCancelled, e.OrderCancelled),
		domain.EventOrderTaken:     orderUpdate(domain.EventOrderTaken, e.OrderTaken),
		domain.EventOrderFulfilled: orderUpdate(domain.EventOrderFulfilled, e.OrderFulfilled),
		domain.EventOrderToExecute: decodeInto(e.OrderToExecute),
		domain.EventQuoteRequested: decodeInto(e.QuoteRequested),
	}
}

func orderUpdate(typ domain.EventType, topic *Topic[domain.OrderUpdate]) dispatcher {
	return func(data json.RawMessage) error {
		var u domain.OrderUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		u.Type = typ
		topic.Publish(u)
		return nil
	}
}

func decodeInto[T any](topic *Topic[T]) dispatcher {
	return func(data json.RawMessage) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		topic.Publish(v)
		return nil
	}
}
