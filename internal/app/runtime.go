package app

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/integration"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/observability"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the ODYSSEY_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// Runtime is the wired service graph shared by the server, the CLI and the worker.
type Runtime struct {
	Config       *Config
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Metrics      *observability.Metrics
	Accounts     *accounts.Service
	Periods      *periods.Service
	Journals     *journals.Service
	Inventory    *inventory.Service
	Orchestrator *integration.Orchestrator
	Integrity    *journals.IntegrityRepository
	Idempotency  *internalShared.IdempotencyStore
}

// NewRuntime connects to Postgres and Redis and builds every service.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	uow := db.NewTxManager(pool)
	audit := internalShared.NewAuditLogger(pool)
	idempotency := internalShared.NewIdempotencyStore(pool)

	accountService := accounts.NewService(accounts.NewRepository(pool), mappings.NewRepository(pool))
	locker := cache.NewLocker(redisClient, cfg.PeriodLockTTL)
	periodService := periods.NewService(periods.NewRepository(pool), uow, locker, audit, logger)
	journalService := journals.NewService(journals.NewRepository(pool), uow, periodService, accountService, audit, metrics, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock}, logger)
	orchestrator := integration.NewOrchestrator(integration.Dependencies{
		UnitOfWork:  uow,
		Accounts:    accountService,
		Ledger:      journalService,
		Stock:       inventoryService,
		Costs:       inventoryService.Costs(),
		Idempotency: idempotency,
		Metrics:     metrics,
		Logger:      logger,
	})

	return &Runtime{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Redis:        redisClient,
		Metrics:      metrics,
		Accounts:     accountService,
		Periods:      periodService,
		Journals:     journalService,
		Inventory:    inventoryService,
		Orchestrator: orchestrator,
		Integrity:    journals.NewIntegrityRepository(pool),
		Idempotency:  idempotency,
	}, nil
}

// Close releases the Redis client and the pool.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			r.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}
