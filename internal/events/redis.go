package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// DefaultStream is the Redis stream lifecycle events are appended to.
const DefaultStream = "rfq:lifecycle"

// RedisPublisher appends each event to a stream and also publishes it on
// "<stream>:<event>" for live subscribers.
type RedisPublisher struct {
	bus    domain.SignalBus
	stream string
}

// NewRedisPublisher creates a RedisPublisher. An empty stream selects
// DefaultStream.
func NewRedisPublisher(bus domain.SignalBus, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{bus: bus, stream: stream}
}

// Stream returns the stream name events are appended to.
func (p *RedisPublisher) Stream() string { return p.stream }

// PublishLifecycle implements domain.EventPublisher.
func (p *RedisPublisher) PublishLifecycle(ctx context.Context, ev domain.Lifecycle) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events/redis: encode: %w", err)
	}
	if err := p.bus.StreamAppend(ctx, p.stream, payload); err != nil {
		return err
	}
	return p.bus.Publish(ctx, p.stream+":"+string(ev.Event), payload)
}
