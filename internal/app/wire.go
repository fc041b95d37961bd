package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/coinbot/internal/blob/s3"
	"github.com/alanyoungcy/coinbot/internal/blob/local"
	"github.com/alanyoungcy/coinbot/internal/cache/memory"
	"github.com/alanyoungcy/coinbot/internal/cache/redis"
	"github.com/alanyoungcy/coinbot/internal/config"
	"github.com/alanyoungcy/coinbot/internal/crypto"
	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/notify"
	"github.com/alanyoungcy/coinbot/internal/platform/binance"
	"github.com/alanyoungcy/coinbot/internal/platform/coinbase"
	"github.com/alanyoungcy/coinbot/internal/server/handler"
	"github.com/alanyoungcy/coinbot/internal/store/postgres"
	"github.com/alanyoungcy/coinbot/internal/stream/kafka"
)

// Dependencies bundles every infrastructure dependency the modes use.
// Optional backends are nil when disabled; interface fields are only set
// when the backend exists.
type Dependencies struct {
	// Stores
	TradeStore    domain.TradeStore
	SnapshotStore domain.SnapshotStore
	DecisionStore domain.DecisionStore
	AuditStore    domain.AuditStore

	// Caches and coordination
	PriceCache    domain.PriceCache
	ThrottleStore domain.ThrottleStore
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage and streaming
	BlobWriters []domain.BlobWriter
	Archiver    domain.Archiver
	Kafka       *kafka.Publisher

	Exchange domain.Exchange
	Notifier *notify.Notifier

	// Health lists the reachable backends for /api/health.
	Health map[string]handler.Pinger

	decisionPruner interface {
		DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	}
}

// pingFunc adapts a health function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that releases them in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Health: make(map[string]handler.Pinger)}

	// Backtests replay into a private ledger; shared state stays untouched.
	persist := cfg.Mode != "backtest"

	// --- PostgreSQL ---
	if persist && cfg.Postgres.Enabled {
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		trades := postgres.NewTradeStore(pool)
		decisions := postgres.NewDecisionStore(pool)
		deps.TradeStore = trades
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.DecisionStore = decisions
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.decisionPruner = decisions
		deps.Health["postgres"] = pgClient
		logger.InfoContext(ctx, "wire: postgres connected")
	}

	// --- Redis ---
	if persist && cfg.Redis.Enabled {
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
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		if cfg.Throttle.Persist {
			deps.ThrottleStore = redis.NewThrottleStore(redisClient)
		}
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamLen)
		deps.Health["redis"] = redisClient
		logger.InfoContext(ctx, "wire: redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.PriceCache = memory.NewPriceCache(cfg.Redis.PriceTTL.Duration)
	}

	// --- Blob storage ---
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriters = append(deps.BlobWriters, writer)
		deps.Health["s3"] = pingFunc(s3Client.Health)

		if persist && cfg.Archive.Enabled {
			if trades, ok := deps.TradeStore.(s3blob.TradeArchiveStore); ok {
				deps.Archiver = s3blob.NewArchiver(writer, trades, deps.AuditStore, cfg.Export.Prefix, cfg.Archive.Prune, logger)
			} else {
				logger.WarnContext(ctx, "wire: archive enabled but postgres is not; archiving disabled")
			}
		}
	}
	if cfg.Export.LocalDir != "" {
		w, err := local.NewWriter(cfg.Export.LocalDir)
		if err != nil {
			return fail(fmt.Errorf("wire: local export: %w", err))
		}
		deps.BlobWriters = append(deps.BlobWriters, w)
	}

	// --- Kafka ---
	if persist && cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:     cfg.Kafka.Brokers,
			TopicPrefix: cfg.Kafka.TopicPrefix,
			Channels:    cfg.Kafka.Channels,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Kafka = pub
	}

	// --- Exchange ---
	if cfg.Mode != "monitor" {
		ex, err := newExchange(cfg, logger)
		if err != nil {
			return fail(err)
		}
		deps.Exchange = ex
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newExchange builds the configured venue client. Coinbase runs without a
// signer when no key is configured; only public market data is then usable.
func newExchange(cfg *config.Config, logger *slog.Logger) (domain.Exchange, error) {
	ex := cfg.Exchange
	switch ex.Provider {
	case "binance":
		return binance.NewClient(binance.Config{
			APIKey:         ex.BinanceAPIKey,
			SecretKey:      ex.BinanceSecretKey,
			BaseURL:        ex.BaseURL,
			QuoteAsset:     ex.QuoteAsset,
			RequestsPerSec: ex.RequestsPerSec,
			Burst:          ex.Burst,
			MaxRetries:     ex.MaxRetries,
		}, logger), nil

	case "coinbase":
		var signer *crypto.Signer
		if ex.APIKeyName != "" && (ex.APISecret != "" || ex.EncryptedKeyPath != "") {
			key, err := crypto.LoadKey(crypto.KeyConfig{
				RawSecret:        ex.APISecret,
				EncryptedKeyPath: ex.EncryptedKeyPath,
				KeyPassword:      ex.KeyPassword,
			})
			if err != nil {
				return nil, fmt.Errorf("wire: load coinbase key: %w", err)
			}
			signer, err = crypto.NewSigner(ex.APIKeyName, key)
			if err != nil {
				return nil, fmt.Errorf("wire: coinbase signer: %w", err)
			}
		}
		client, err := coinbase.NewClient(coinbase.Config{
			BaseURL:        ex.BaseURL,
			RequestsPerSec: ex.RequestsPerSec,
			Burst:          ex.Burst,
			MaxRetries:     ex.MaxRetries,
			Timeout:        ex.Timeout.Duration,
		}, signer, logger)
		if err != nil {
			return nil, fmt.Errorf("wire: coinbase: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("wire: unknown exchange provider %q", ex.Provider)
	}
}
