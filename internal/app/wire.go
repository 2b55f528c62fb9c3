package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/mkravets/crossarb/internal/blob/s3"
	"github.com/mkravets/crossarb/internal/cache/redis"
	"github.com/mkravets/crossarb/internal/config"
	"github.com/mkravets/crossarb/internal/crypto"
	"github.com/mkravets/crossarb/internal/domain"
	"github.com/mkravets/crossarb/internal/notify"
	"github.com/mkravets/crossarb/internal/store/postgres"
	"github.com/mkravets/crossarb/internal/venue"
	"github.com/mkravets/crossarb/internal/venue/dex"
	"github.com/mkravets/crossarb/internal/venue/mexc"
	"github.com/mkravets/crossarb/internal/venue/sim"
)

// Dependencies bundles every domain-level dependency the engine needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Venues
	RefSource domain.QuoteSource
	CmpSource domain.QuoteSource
	Gateway   domain.OrderGateway
	Mexc      *mexc.Client       // raw client, for the startup connectivity check
	Ticker    *mexc.TickerStream // nil unless the WebSocket feed is enabled

	// Persistence
	EventStore    domain.TradeEventStore // nil without Postgres
	Archiver      domain.DayArchiver     // nil without Postgres
	SessionStores []domain.SessionStore  // Postgres and/or S3

	// Event sinks
	Recorder domain.TradeRecorder
	Notifier *notify.Notifier
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

	// --- Venue clients ---
	var auth *crypto.HMACAuth
	if cfg.Mexc.ApiKey != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:     cfg.Mexc.ApiSecret,
			EncryptedPath: cfg.Mexc.SecretFile,
			Password:      cfg.Mexc.SecretPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: mexc secret: %w", err)
		}
		auth = &crypto.HMACAuth{Key: cfg.Mexc.ApiKey, Secret: secret}
	}
	mexcClient := mexc.NewClient(cfg.Mexc.BaseURL, auth, cfg.Risk.Leverage, cfg.Mexc.Timeout.Duration)
	dexClient := dex.NewClient(cfg.Dex.BaseURL, cfg.Dex.Chain, cfg.Dex.TokenMap, cfg.Dex.Timeout.Duration, logger)

	deps.Mexc = mexcClient
	deps.RefSource = mexcClient
	deps.CmpSource = dexClient

	// --- Redis quote cache ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		quoteCache := redis.NewQuoteCache(redisClient)
		ttl := cfg.Redis.QuoteTTL.Duration
		deps.RefSource = venue.NewCachedSource(mexcClient, quoteCache, ttl, logger)
		deps.CmpSource = venue.NewCachedSource(dexClient, quoteCache, ttl, logger)

		// The WebSocket feed needs the cache to land its pushes in; without
		// Redis it has nowhere to write, so it stays off.
		if cfg.Mexc.WsEnabled {
			deps.Ticker = mexc.NewTickerStream(
				cfg.Mexc.WsURL, cfg.Trading.Symbols, quoteCache, ttl, logger,
			)
			closers = append(closers, deps.Ticker.Close)
		}
	}

	// --- Order gateway ---
	switch cfg.Mode {
	case "live":
		deps.Gateway = mexcClient
	default:
		deps.Gateway = sim.NewGateway(deps.RefSource, cfg.Risk.InitialBalance, cfg.Risk.Leverage, logger)
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
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.EventStore = postgres.NewEventStore(pool)
		statsStore := postgres.NewStatsStore(pool)
		deps.Archiver = statsStore
		deps.SessionStores = append(deps.SessionStores, statsStore)
	}

	// --- S3 session reports ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.SessionStores = append(deps.SessionStores, s3blob.NewReportWriter(s3Client))
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
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	deps.Recorder = NewRecorder(deps.EventStore, deps.Notifier, logger)

	return deps, cleanup, nil
}
