package domain

import (
	"context"
	"time"
)

// EventType is the discriminator carried by every inbound feed message.
type EventType string

const (
	EventOrderCreated   EventType = "order-created"
	EventOrderCancelled EventType = "order-cancelled"
	EventOrderTaken     EventType = "order-taken"
	EventOrderFulfilled EventType = "order-fulfilled"
	EventOrderToExecute EventType = "order-to-execute"
	EventQuoteRequested EventType = "quote-requested"
)

// OrderUpdate is the payload of the order status events (created, cancelled,
// taken, fulfilled).
type OrderUpdate struct {
	Type      EventType `json:"-"`
	OrderHash OrderHash `json:"orderHash"`
	ChainID   uint32    `json:"chainId"`
}

// LifecycleEvent names a ledger or order transition published to the
// configured event sink.
type LifecycleEvent string

const (
	LifecycleOrderSigned      LifecycleEvent = "order.signed"
	LifecycleOrderCancelled   LifecycleEvent = "order.cancelled"
	LifecycleExecutionSettled LifecycleEvent = "execution.settled"
	LifecycleExecutionFailed  LifecycleEvent = "execution.failed"
	LifecycleExecutionExpired LifecycleEvent = "execution.expired"
)

// Lifecycle is one published lifecycle transition.
type Lifecycle struct {
	Event     LifecycleEvent `json:"event"`
	OrderHash OrderHash      `json:"orderHash"`
	ChainID   uint32         `json:"chainId"`
	TxHash    string         `json:"txHash,omitempty"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// EventPublisher fans lifecycle transitions out to an external sink.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, ev Lifecycle) error
}
