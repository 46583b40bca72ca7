package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veilworks/blindbet/internal/archive"
	"github.com/veilworks/blindbet/internal/bet"
	s3blob "github.com/veilworks/blindbet/internal/blob/s3"
	"github.com/veilworks/blindbet/internal/bus"
	redisbus "github.com/veilworks/blindbet/internal/bus/redis"
	"github.com/veilworks/blindbet/internal/config"
	"github.com/veilworks/blindbet/internal/domain"
	"github.com/veilworks/blindbet/internal/enclave"
	"github.com/veilworks/blindbet/internal/market"
	"github.com/veilworks/blindbet/internal/server"
	"github.com/veilworks/blindbet/internal/server/handler"
	"github.com/veilworks/blindbet/internal/server/ws"
	"github.com/veilworks/blindbet/internal/settlement"
	"github.com/veilworks/blindbet/internal/store/memory"
	"github.com/veilworks/blindbet/internal/store/postgres"
	"github.com/veilworks/blindbet/internal/token"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Dependencies bundles every long-lived component the application runs. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Markets domain.MarketStore
	Bets    domain.BetStore
	Claims  domain.ClaimStore
	Events  domain.EventStore

	Enclave *enclave.Service
	Ledger  *token.Ledger

	Registry *market.Registry
	BetSvc   *bet.Service
	Engine   *settlement.Engine

	Oracle   *enclave.Oracle
	Hub      *ws.Hub
	Server   *server.Server
	Archiver *archive.Archiver
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
	mode := strings.ToLower(cfg.Mode)

	// --- Stores and event transport per mode ---
	var (
		baseBus domain.EventBus
		feed    domain.EventFeed
	)
	switch mode {
	case "serve":
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
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Bets = postgres.NewBetStore(pool)
		deps.Claims = postgres.NewClaimStore(pool)
		deps.Events = postgres.NewEventStore(pool)

		redisClient, err := redisbus.New(ctx, redisbus.ClientConfig{
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

		eventBus := redisbus.NewEventBus(redisClient)
		baseBus = eventBus
		feed = eventBus

	case "memory":
		deps.Markets = memory.NewMarketStore()
		deps.Bets = memory.NewBetStore()
		deps.Claims = memory.NewClaimStore()
		deps.Events = memory.NewEventStore()

		memBus := bus.NewMemory()
		baseBus = memBus
		feed = memBus

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unsupported mode %q", cfg.Mode)
	}

	// Every published event is also appended to the durable event log.
	eventBus := bus.Fanout{bus.StoreSink{Store: deps.Events}, baseBus}

	// --- Confidential value service and token ledger ---
	encSvc, err := enclave.New(enclave.Config{
		Passphrase: cfg.Enclave.Passphrase,
		QueueSize:  cfg.Enclave.QueueSize,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: enclave: %w", err)
	}
	deps.Enclave = encSvc
	deps.Ledger = token.New(encSvc, cfg.LedgerAddress(), logger)

	treasury := cfg.TreasuryAddress()

	// --- Domain services ---
	deps.Registry = market.NewRegistry(deps.Markets, deps.Bets, encSvc, eventBus, treasury, logger)
	deps.BetSvc = bet.NewService(deps.Markets, deps.Bets, deps.Ledger, encSvc, eventBus, treasury, logger)
	deps.Engine = settlement.NewEngine(
		deps.Markets, deps.Bets, deps.Claims, encSvc, deps.Ledger, eventBus,
		treasury, cfg.LedgerAddress(), cfg.Settlement.ClaimTTL.Duration, logger,
	)

	// The oracle delivers verified decrypt results straight into settlement.
	deps.Oracle = enclave.NewOracle(encSvc, deps.Engine.FinalizeReward, logger)

	// --- Archiver (serve mode with object storage configured) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         true,
			ForcePathStyle: true,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = archive.NewArchiver(
			deps.Markets, deps.Events, s3blob.NewWriter(s3Client),
			cfg.Archive.Interval.Duration, logger,
		)
	}

	// --- HTTP server ---
	deps.Hub = ws.NewHub(feed, logger)
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(deps.Registry, deps.BetSvc, logger),
		Bets:    handler.NewBetHandler(deps.BetSvc),
		Claims:  handler.NewClaimHandler(deps.Engine),
		Token:   handler.NewTokenHandler(deps.Ledger, encSvc, mode == "memory"),
	}
	deps.Server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, handlers, deps.Hub, logger)

	return deps, cleanup, nil
}
