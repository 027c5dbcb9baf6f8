package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

type fakeBus struct {
	published map[string][]byte
	streams   map[string][][]byte
	err       error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][]byte{}, streams: map[string][][]byte{}}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = payload
	return nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeJS struct {
	subjects []string
	payloads [][]byte
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "RFQ_LIFECYCLE", Sequence: uint64(len(f.subjects))}, nil
}

type errPublisher struct{ err error }

func (e errPublisher) PublishLifecycle(context.Context, domain.Lifecycle) error { return e.err }

func sampleEvent() domain.Lifecycle {
	var h domain.OrderHash
	h[31] = 1
	return domain.Lifecycle{
		Event:     domain.LifecycleExecutionSettled,
		OrderHash: h,
		ChainID:   1,
		TxHash:    "0xabc",
		At:        time.Unix(1700000000, 0).UTC(),
	}
}

func TestRedisPublisherStreamsAndPublishes(t *testing.T) {
	bus := newFakeBus()
	p := NewRedisPublisher(bus, "")
	ev := sampleEvent()

	require.NoError(t, p.PublishLifecycle(context.Background(), ev))

	require.Len(t, bus.streams[DefaultStream], 1)
	var got domain.Lifecycle
	require.NoError(t, json.Unmarshal(bus.streams[DefaultStream][0], &got))
	assert.Equal(t, ev, got)
	assert.Contains(t, bus.published, "rfq:lifecycle:execution.settled")
}

func TestRedisPublisherStreamError(t *testing.T) {
	bus := newFakeBus()
	bus.err = errors.New("down")
	p := NewRedisPublisher(bus, "custom")

	assert.Error(t, p.PublishLifecycle(context.Background(), sampleEvent()))
	assert.Empty(t, bus.published)
	assert.Equal(t, "custom", p.Stream())
}

func TestNATSPublisherSubject(t *testing.T) {
	js := &fakeJS{}
	p := &NATSPublisher{js: js, prefix: "rfq"}

	require.NoError(t, p.PublishLifecycle(context.Background(), sampleEvent()))
	assert.Equal(t, []string{"rfq.execution.settled"}, js.subjects)
	assert.NoError(t, p.Close())
}

func TestMultiJoinsErrors(t *testing.T) {
	bus := newFakeBus()
	boom := errors.New("boom")
	m := Multi{NewRedisPublisher(bus, ""), errPublisher{err: boom}}

	err := m.PublishLifecycle(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, bus.streams[DefaultStream], 1)
}

func TestLoggedPassesThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	boom := errors.New("boom")

	assert.ErrorIs(t, Logged{Backend: "x", Next: errPublisher{err: boom}, Logger: logger}.
		PublishLifecycle(context.Background(), sampleEvent()), boom)
	assert.NoError(t, Logged{Backend: "x", Next: Noop{}, Logger: logger}.
		PublishLifecycle(context.Background(), sampleEvent()))
}
