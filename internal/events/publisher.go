// Package events publishes order and execution lifecycle transitions to an
// external sink so other services can follow the maker without polling it.
package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/metrics"
)

// Backend names accepted in configuration.
const (
	BackendNone  = ""
	BackendRedis = "redis"
	BackendNATS  = "nats"
)

// Noop discards every event.
type Noop struct{}

func (Noop) PublishLifecycle(context.Context, domain.Lifecycle) error { return nil }

// Multi fans an event out to several publishers, returning the joined errors.
type Multi []domain.EventPublisher

func (m Multi) PublishLifecycle(ctx context.Context, ev domain.Lifecycle) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishLifecycle(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logged wraps a publisher and counts its outcomes under backend. Failures are
// logged here and still returned to the caller.
type Logged struct {
	Backend string
	Next    domain.EventPublisher
	Logger  *slog.Logger
}

func (l Logged) PublishLifecycle(ctx context.Context, ev domain.Lifecycle) error {
	err := l.Next.PublishLifecycle(ctx, ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(l.Backend, "error").Inc()
		l.Logger.Debug("lifecycle publish failed",
			slog.String("backend", l.Backend),
			slog.String("event", string(ev.Event)),
			slog.String("error", err.Error()),
		)
		return err
	}
	metrics.EventsPublished.WithLabelValues(l.Backend, "ok").Inc()
	return nil
}

var (
	_ domain.EventPublisher = Noop{}
	_ domain.EventPublisher = Multi(nil)
	_ domain.EventPublisher = Logged{}
)
