package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coin-ledger/config"
	httpHandler "coin-ledger/internal/adapter/http/handler"
	"coin-ledger/internal/adapter/http/middleware"
	"coin-ledger/internal/adapter/scheduler"
	"coin-ledger/internal/adapter/storage/memory"
	pgStorage "coin-ledger/internal/adapter/storage/postgres"
	redisStorage "coin-ledger/internal/adapter/storage/redis"
	"coin-ledger/internal/core/ports"
	"coin-ledger/internal/service"
	"coin-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// repositories is the storage surface the services are built on.
type repositories struct {
	accounts    ports.AccountRepository
	txns        ports.TransactionRepository
	rates       ports.MerchantRateRepository
	settlements ports.SettlementRepository
	idempotency ports.IdempotencyRepository
	ledger      ports.LedgerRepository
	audit       ports.AuditRepository
	transactor  ports.DBTransactor
	health      ports.HealthChecker
	close       func()
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CLG_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting coin ledger")

	ctx := context.Background()

	policy, err := cfg.Policy.RewardPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid reward policy")
	}
	loc, err := cfg.Settlement.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid settlement timezone")
	}
	if cfg.Gateway.Secret == "" || cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret and gateway.secret must be set")
	}

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, cfg.Storage.Timeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Core services
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	engine := service.NewBalanceEngine(repos.accounts, log)
	calc := service.NewCalculator(policy)
	accountSvc := service.NewAccountService(engine, repos.accounts, repos.txns, repos.transactor, log)
	transferSvc := service.NewTransferService(engine, policy, repos.txns, repos.idempotency, idempotencyCache, repos.transactor, log)
	paymentSvc := service.NewPaymentService(calc, engine, repos.txns, repos.rates, repos.idempotency, idempotencyCache, repos.transactor, log)
	settlementSvc := service.NewSettlementService(engine, repos.txns, repos.settlements, repos.transactor, loc, log)
	rateSvc := service.NewMerchantRateService(repos.rates, log)
	reconSvc := service.NewReconciliationService(repos.ledger, log)
	auditSvc := service.NewAuditService(repos.audit, log)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AccountSvc:    accountSvc,
		TransferSvc:   transferSvc,
		PaymentSvc:    paymentSvc,
		RateSvc:       rateSvc,
		SettlementSvc: settlementSvc,
		ReconSvc:      reconSvc,
		AuditSvc:      auditSvc,
		SigSvc:        sigSvc,
		NonceStore:    nonceStore,
		TokenSvc:      tokenSvc,
		Gateway: middleware.GatewayAuthConfig{
			Secret:        cfg.Gateway.Secret,
			MaxClockDrift: cfg.Gateway.MaxClockDrift,
		},
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{repos.health, redisStorage.NewHealthCheck(rdb)},
		SettlementLoc:  loc,
		RequestTimeout: cfg.Storage.Timeout,
		Logger:         log,
	})

	// Periodic reconciliation
	var reconJob *scheduler.ReconciliationJob
	if cfg.Reconciliation.Enabled {
		reconJob, err = scheduler.NewReconciliationJob(reconSvc, cfg.Reconciliation.Schedule, cfg.Storage.Timeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule reconciliation")
		}
		reconJob.Start()
	}

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if reconJob != nil {
		if err := reconJob.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Reconciliation still running at shutdown")
		}
	}

	log.Info().Msg("Server exited")
}

// openStorage builds the repositories for the configured driver.
func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage, balances are lost on restart")
		store := memory.NewStore()
		return &repositories{
			accounts:    store.Accounts(),
			txns:        store.Transactions(),
			rates:       store.MerchantRates(),
			settlements: store.Settlements(),
			idempotency: store.Idempotency(),
			ledger:      store.Ledger(),
			audit:       store.Audit(),
			transactor:  store,
			health:      memory.HealthCheck{},
			close:       func() {},
		}, nil

	case config.DriverPostgres:
		if cfg.Database.AutoMigrate {
			if err := pgStorage.NewMigrator(cfg.Database.DSN(), log).Up(); err != nil {
				return nil, err
			}
		}
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("PostgreSQL connected")
		return &repositories{
			accounts:    pgStorage.NewAccountRepo(pool),
			txns:        pgStorage.NewTransactionRepo(pool),
			rates:       pgStorage.NewMerchantRateRepo(pool),
			settlements: pgStorage.NewSettlementRepo(pool),
			idempotency: pgStorage.NewIdempotencyRepo(pool),
			ledger:      pgStorage.NewLedgerRepo(pool),
			audit:       pgStorage.NewAuditRepo(pool),
			transactor:  pgStorage.NewTransactor(pool),
			health:      pgStorage.NewHealthCheck(pool),
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
