package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/oddsmesh/oddsmesh/internal/blob/s3"
	"github.com/oddsmesh/oddsmesh/internal/cache/redis"
	"github.com/oddsmesh/oddsmesh/internal/config"
	"github.com/oddsmesh/oddsmesh/internal/domain"
	"github.com/oddsmesh/oddsmesh/internal/notify"
	"github.com/oddsmesh/oddsmesh/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Redis: live mesh state and coordination.
	Transport   domain.SignalTransport
	SignalStore domain.SignalStore
	NodeStore   domain.NodeStore
	OddsCache   domain.OddsCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Postgres: write-side history (only for modes that persist).
	SignalHistory domain.SignalHistoryStore
	OutcomeStore  domain.OutcomeStore
	MovementStore domain.MovementStore
	ArbHistory    domain.ArbHistoryStore
	AuditStore    domain.AuditStore

	// Blob storage (archive mode only).
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require the history database.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "detect", "archive":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (every mode coordinates through it) ---
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

	deps.Transport = redis.NewTransport(redisClient)
	deps.SignalStore = redis.NewSignalStore(redisClient)
	deps.NodeStore = redis.NewNodeStore(redisClient)
	deps.OddsCache = redis.NewOddsCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- PostgreSQL (only for modes that write history) ---
	if needsPostgres(cfg.Mode) {
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
		deps.SignalHistory = postgres.NewSignalHistoryStore(pool)
		deps.OutcomeStore = postgres.NewOutcomeStore(pool)
		deps.MovementStore = postgres.NewMovementStore(pool)
		deps.ArbHistory = postgres.NewArbHistoryStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.SignalHistory != nil && deps.OutcomeStore != nil && deps.MovementStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.SignalHistory,
				deps.OutcomeStore,
				deps.MovementStore,
				deps.AuditStore,
			)
		}
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
