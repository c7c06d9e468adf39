package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/dmarquez/updownbot/internal/blob/s3"
	"github.com/dmarquez/updownbot/internal/cache/redis"
	"github.com/dmarquez/updownbot/internal/config"
	"github.com/dmarquez/updownbot/internal/crypto"
	"github.com/dmarquez/updownbot/internal/domain"
	"github.com/dmarquez/updownbot/internal/engine"
	"github.com/dmarquez/updownbot/internal/executor"
	"github.com/dmarquez/updownbot/internal/feed"
	"github.com/dmarquez/updownbot/internal/notify"
	"github.com/dmarquez/updownbot/internal/platform/polymarket"
	"github.com/dmarquez/updownbot/internal/platform/sim"
	"github.com/dmarquez/updownbot/internal/store/postgres"
)

// Dependencies bundles everything the trading engine needs. It is
// constructed by Wire and torn down by the returned cleanup function.
// Store, Bus, Archiver, and Notifier are nil when the corresponding
// subsystem is disabled in configuration.
type Dependencies struct {
	Venue    executor.Venue
	Fetcher  feed.BookFetcher
	Finder   engine.MarketFinder
	Store    domain.AttemptStore
	Bus      domain.SignalBus
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Venue and book source ---
	// The CLOB client serves book snapshots unauthenticated, so it backs
	// the feed in both modes; it only becomes the venue when trading live.
	var signer *crypto.Signer
	if !cfg.DryRun {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err = crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
	}

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, nil)
	deps.Fetcher = clob

	if cfg.DryRun {
		deps.Venue = sim.NewVenue(cfg.SimBalance, logger)
	} else {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, nil, fmt.Errorf("wire: derive api key: %w", err)
		}
		deps.Venue = clob
	}

	deps.Finder = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

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

		deps.Store = postgres.NewAttemptStore(pgClient.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		bus, err := redis.NewSignalBus(ctx, redis.Config{
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
		closers = append(closers, func() { _ = bus.Close() })

		deps.Bus = bus
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

		// The archiver exports from the attempt store, so it needs both.
		if deps.Store != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Store, logger)
		} else {
			logger.Warn("s3 enabled without postgres, daily archive disabled")
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
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
