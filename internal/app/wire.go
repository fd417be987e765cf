package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/buyalert/internal/blob/s3"
	"github.com/alanyoungcy/buyalert/internal/cache/redis"
	"github.com/alanyoungcy/buyalert/internal/config"
	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/eventsink/kafka"
	"github.com/alanyoungcy/buyalert/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure the modes build on. Every
// field may be nil when the backing service is disabled.
type Dependencies struct {
	// Durable threshold homes; the TOML file is always first.
	ThresholdStores []domain.ThresholdStore
	Settings        *postgres.SettingsStore
	AuditStore      domain.AuditStore

	SignalBus   domain.SignalBus
	StateCache  domain.StateCache
	RateLimiter domain.RateLimiter

	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter

	// Sinks receive every alert before delivery.
	Sinks []domain.AlertSink
}

// Wire constructs the concrete implementations enabled in cfg and returns
// them together with a cleanup function that releases them.
func Wire(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		ThresholdStores: []domain.ThresholdStore{config.NewFileStore(configPath)},
	}

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
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: postgres migrations applied", slog.Any("files", applied))
			}
		}

		pool := pgClient.Pool()
		deps.Settings = postgres.NewSettingsStore(pool)
		deps.ThresholdStores = append(deps.ThresholdStores, deps.Settings)
		deps.AuditStore = postgres.NewAuditStore(pool)
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
		deps.SignalBus = bus
		deps.StateCache = redis.NewStateCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Delivery.PerTargetInterval.Duration)
		deps.Sinks = append(deps.Sinks, redis.NewAlertSink(bus))
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: s3 health check failed",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		store := s3blob.NewStore(s3Client)
		deps.BlobReader = store
		deps.BlobWriter = store
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("wire: kafka close", slog.String("error", err.Error()))
			}
		})
		deps.Sinks = append(deps.Sinks, pub)
	}

	return deps, cleanup, nil
}
