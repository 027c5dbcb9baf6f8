package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/config"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/events"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error      { return nil }
func (nopBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (nopBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestWireWithoutInfrastructure(t *testing.T) {
	cfg := config.Defaults()

	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Ledger)
	assert.NotNil(t, deps.Notifier)
	assert.False(t, deps.Notifier.Enabled())
	assert.Nil(t, deps.Events)
	assert.Nil(t, deps.SettlementStore)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Checks)
}

func TestNewEventPublisher(t *testing.T) {
	pub, closeFn, err := newEventPublisher(config.EventsConfig{}, nil, discard())
	require.NoError(t, err)
	assert.Nil(t, pub)
	assert.Nil(t, closeFn)

	_, _, err = newEventPublisher(config.EventsConfig{Backend: events.BackendRedis}, nil, discard())
	assert.ErrorContains(t, err, "needs redis")

	pub, _, err = newEventPublisher(config.EventsConfig{Backend: events.BackendRedis}, nopBus{}, discard())
	require.NoError(t, err)
	logged, ok := pub.(events.Logged)
	require.True(t, ok)
	assert.Equal(t, events.BackendRedis, logged.Backend)

	_, _, err = newEventPublisher(config.EventsConfig{Backend: "kafka"}, nil, discard())
	assert.Error(t, err)
}

func TestEventsStream(t *testing.T) {
	assert.Empty(t, eventsStream(config.EventsConfig{Backend: events.BackendNATS, Stream: "x"}))
	assert.Equal(t, events.DefaultStream, eventsStream(config.EventsConfig{Backend: events.BackendRedis}))
	assert.Equal(t, "custom", eventsStream(config.EventsConfig{Backend: events.BackendRedis, Stream: "custom"}))
}
