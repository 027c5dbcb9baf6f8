package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // default "rfq"
	Stream        string // default "RFQ_LIFECYCLE"
	Timeout       time.Duration
}

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes lifecycle events to JetStream subjects
// "<prefix>.<event>", creating the backing stream on first connect.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetStream
	prefix string
}

// NewNATSPublisher connects to NATS and makes sure the lifecycle stream exists.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "rfq"
	}
	if cfg.Stream == "" {
		cfg.Stream = "RFQ_LIFECYCLE"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	log := logger.With(slog.String("component", "events_nats"))

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events/nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events/nats: jetstream: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.SubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("events/nats: add stream %s: %w", cfg.Stream, err)
		}
		log.Info("created lifecycle stream", slog.String("stream", cfg.Stream))
	}

	return &NATSPublisher{conn: conn, js: js, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject ev is published on.
func (p *NATSPublisher) Subject(ev domain.LifecycleEvent) string {
	return p.prefix + "." + string(ev)
}

// PublishLifecycle implements domain.EventPublisher.
func (p *NATSPublisher) PublishLifecycle(ctx context.Context, ev domain.Lifecycle) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events/nats: encode: %w", err)
	}
	if _, err := p.js.Publish(p.Subject(ev.Event), payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("events/nats: publish %s: %w", ev.Event, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
