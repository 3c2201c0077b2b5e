package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/pairarb/internal/blob/s3"
	"github.com/alanyoungcy/pairarb/internal/cache/redis"
	"github.com/alanyoungcy/pairarb/internal/config"
	"github.com/alanyoungcy/pairarb/internal/domain"
	"github.com/alanyoungcy/pairarb/internal/matchcache"
	"github.com/alanyoungcy/pairarb/internal/notify"
	"github.com/alanyoungcy/pairarb/internal/server/handler"
	"github.com/alanyoungcy/pairarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure the operating modes need. Optional
// backends that are not configured stay nil. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Matches    domain.MatchSource
	Executions domain.ExecutionStore
	AuditLog   domain.AuditStore

	// Caches
	Locks        domain.LockManager
	SignalBus    domain.SignalBus
	AccountStore *redis.AccountStore

	// Blob storage
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Checks are the health probes of every connected backend.
	Checks map[string]handler.Check
}

// needsPostgres reports whether the configuration requires a database
// connection.
func needsPostgres(cfg *config.Config) bool {
	return cfg.Mode == "live" || cfg.Matches.Source == "postgres"
}

// needsRedis reports whether the redis caches are wanted. Check mode only
// reads matches.
func needsRedis(cfg *config.Config) bool {
	return cfg.Redis.Enabled && cfg.Mode != "check"
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

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Checks["postgres"] = pgClient.Health

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Executions = postgres.NewExecutionStore(pool)
		deps.AuditLog = postgres.NewAuditStore(pool)
		if cfg.Matches.Source == "postgres" {
			deps.Matches = postgres.NewMatchStore(pool)
		}
	}

	if cfg.Matches.Source == "static" {
		pairs := make([]domain.MatchedPair, 0, len(cfg.Matches.Pairs))
		for i, p := range cfg.Matches.Pairs {
			mp, err := p.MatchedPair()
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: matches.pairs[%d]: %w", i, err)
			}
			pairs = append(pairs, mp)
		}
		deps.Matches = matchcache.NewStaticSource(pairs)
	}

	// --- Redis ---
	if needsRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Ping

		deps.Locks = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		if cfg.Account.Mirror {
			deps.AccountStore = redis.NewAccountStore(redisClient)
		}
	}

	// --- S3 blob storage (archive needs the audit log to read from) ---
	if cfg.Archive.Enabled && deps.AuditLog != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Checks["s3"] = s3Client.Health

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client, cfg.S3.PartSize),
			deps.AuditLog,
			s3blob.ArchiverConfig{
				Retention: cfg.Archive.Retention.Duration,
				BatchSize: cfg.Archive.BatchSize,
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIBase,
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
