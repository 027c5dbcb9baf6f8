package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/rfqmaker/internal/blob/s3"
	"github.com/alanyoungcy/rfqmaker/internal/cache/redis"
	"github.com/alanyoungcy/rfqmaker/internal/config"
	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/events"
	"github.com/alanyoungcy/rfqmaker/internal/ledger"
	"github.com/alanyoungcy/rfqmaker/internal/notify"
	"github.com/alanyoungcy/rfqmaker/internal/server/handler"
	"github.com/alanyoungcy/rfqmaker/internal/store/postgres"
)

// Dependencies bundles the infrastructure both modes share. Optional parts are
// nil when their section is disabled.
type Dependencies struct {
	// Stores
	AuditStore      domain.AuditStore
	QuoteStore      domain.QuoteStore
	SettlementStore *postgres.SettlementStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	Events   domain.EventPublisher
	Ledger   *ledger.Ledger
	Notifier *notify.Notifier

	// Health checks reported by /api/health.
	Checks map[string]handler.Check
}

// Wire constructs the shared infrastructure from cfg and returns it together
// with a cleanup function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.QuoteStore = postgres.NewQuoteStore(pool)
		deps.SettlementStore = postgres.NewSettlementStore(pool)
		deps.Checks["postgres"] = pool.Ping
	}

	// --- Redis ---
	var mirror *redis.LedgerMirror
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		mirror = redis.NewLedgerMirror(redisClient, logger)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 archive ---
	if cfg.S3.Enabled && deps.SettlementStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.SettlementStore, deps.AuditStore, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Lifecycle events ---
	publisher, closePublisher, err := newEventPublisher(cfg.Events, deps.SignalBus, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: events: %w", err)
	}
	if closePublisher != nil {
		closers = append(closers, closePublisher)
	}
	deps.Events = publisher

	// --- Pending-execution ledger ---
	observers := []ledger.Observer{ledger.GaugeObserver{}}
	if mirror != nil {
		observers = append(observers, mirror)
	}
	if deps.Events != nil {
		observers = append(observers, ledger.EventObserver{Publisher: deps.Events, Logger: logger})
	}
	deps.Ledger = ledger.New(observers...)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newEventPublisher builds the configured lifecycle sink. It returns a nil
// publisher when events are disabled and a non-nil close func for sinks that
// hold a connection.
func newEventPublisher(cfg config.EventsConfig, bus domain.SignalBus, logger *slog.Logger) (domain.EventPublisher, func(), error) {
	switch cfg.Backend {
	case events.BackendNone:
		return nil, nil, nil
	case events.BackendRedis:
		if bus == nil {
			return nil, nil, fmt.Errorf("backend %q needs redis", cfg.Backend)
		}
		stream := cfg.Stream
		if stream == "" {
			stream = events.DefaultStream
		}
		return events.Logged{
			Backend: events.BackendRedis,
			Next:    events.NewRedisPublisher(bus, stream),
			Logger:  logger,
		}, nil, nil
	case events.BackendNATS:
		pub, err := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.SubjectPrefix,
			Timeout:       5 * time.Second,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return events.Logged{
			Backend: events.BackendNATS,
			Next:    pub,
			Logger:  logger,
		}, func() { _ = pub.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// eventsStream is the redis stream served by /api/events, empty when
// lifecycle events do not go to redis.
func eventsStream(cfg config.EventsConfig) string {
	if cfg.Backend != events.BackendRedis {
		return ""
	}
	if cfg.Stream == "" {
		return events.DefaultStream
	}
	return cfg.Stream
}
