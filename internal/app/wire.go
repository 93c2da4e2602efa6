package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/sealedmarkets/batchpool/internal/blob/s3"
	"github.com/sealedmarkets/batchpool/internal/cache/redis"
	"github.com/sealedmarkets/batchpool/internal/config"
	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/notify"
	"github.com/sealedmarkets/batchpool/internal/server/handler"
	"github.com/sealedmarkets/batchpool/internal/store/postgres"
)

// Dependencies bundles the infrastructure-level dependencies that every
// application mode builds its services from. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Reveals     domain.RevealStore
	Settlements domain.SettlementStore
	Audit       domain.AuditStore

	// Redis
	RoundCache  domain.RoundCache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Pingers feed the health endpoint's per-dependency checks.
	Pingers map[string]handler.Pinger
}

// pingFunc adapts a bare connectivity check to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// Every mode gets the full set: the reveal log must be persisted wherever
// reveals are accepted, and finalization archives to object storage wherever
// rounds are finalized.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: make(map[string]handler.Pinger),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Reveals = postgres.NewRevealStore(pool)
	deps.Settlements = postgres.NewSettlementStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.Pingers["postgres"] = pingFunc(pgClient.Ping)

	// --- Redis ---
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

	deps.RoundCache = redis.NewRoundCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Pingers["redis"] = pingFunc(redisClient.Ping)

	// --- S3 blob storage ---
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
	deps.Archiver = s3blob.NewRoundArchiver(
		deps.BlobWriter,
		deps.Reveals,
		deps.Settlements,
		deps.Audit,
	)
	deps.Pingers["s3"] = pingFunc(s3Client.Health)

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
