package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/binarymarket/internal/blob/s3"
	"github.com/alanyoungcy/binarymarket/internal/cache/redis"
	"github.com/alanyoungcy/binarymarket/internal/config"
	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/metrics"
	"github.com/alanyoungcy/binarymarket/internal/notify"
	"github.com/alanyoungcy/binarymarket/internal/server/handler"
	"github.com/alanyoungcy/binarymarket/internal/store/memory"
	"github.com/alanyoungcy/binarymarket/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function. Optional
// members are nil when their backend is disabled.
type Dependencies struct {
	Store domain.MarketStore
	Locks domain.LockManager

	// Postgres is set only for the postgres backend.
	Postgres *postgres.Client

	// Redis-backed; nil unless redis.enabled.
	Cache     domain.MarketCache
	Publisher domain.EventPublisher
	SignalBus domain.SignalBus
	Limiter   domain.RateLimiter

	// Object storage; nil unless archive.enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Checks probe every connected backend for the health endpoint.
	Checks []handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Locks:   memory.NewLockManager(),
	}

	// --- Store ---
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:         cfg.Postgres.DSN,
			Host:        cfg.Postgres.Host,
			Port:        cfg.Postgres.Port,
			Database:    cfg.Postgres.Database,
			User:        cfg.Postgres.User,
			Password:    cfg.Postgres.Password,
			SSLMode:     cfg.Postgres.SSLMode,
			MaxConns:    cfg.Postgres.PoolMaxConns,
			MinConns:    cfg.Postgres.PoolMinConns,
			LockTimeout: cfg.Postgres.LockTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Migrate mode applies migrations itself.
		if cfg.Postgres.RunMigrations && cfg.Mode != "migrate" {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "postgres migrations applied", slog.Any("files", applied))
			}
		}

		deps.Postgres = pgClient
		deps.Store = postgres.NewMarketStore(pgClient.Pool())
		deps.Checks = append(deps.Checks, handler.Check{Name: "postgres", Probe: pgClient.Ping})
	default:
		deps.Store = memory.New()
		logger.WarnContext(ctx, "wire: using in-memory store; state is lost on restart")
	}

	// --- Redis ---
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

		bus := redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Cache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.Publisher = bus
		deps.SignalBus = bus
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Checks = append(deps.Checks, handler.Check{Name: "redis", Probe: redisClient.Ping})
	}

	// --- S3 blob storage ---
	if cfg.Archive.Enabled {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client, cfg.S3.PartSize)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks = append(deps.Checks, handler.Check{Name: "s3", Probe: s3Client.Health})
	}

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
