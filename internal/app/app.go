// Package app wires every component into the two runtime modes: api (HTTP
// server) and worker (generation job queue + periodic sweepers).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/config"
	"github.com/agenr/gateway/internal/confirm"
	"github.com/agenr/gateway/internal/credential"
	"github.com/agenr/gateway/internal/execute"
	"github.com/agenr/gateway/internal/genjob"
	"github.com/agenr/gateway/internal/httpserver"
	"github.com/agenr/gateway/internal/idempotency"
	"github.com/agenr/gateway/internal/journal"
	"github.com/agenr/gateway/internal/oauthrefresh"
	"github.com/agenr/gateway/internal/platform"
	"github.com/agenr/gateway/internal/telemetry"
	"github.com/agenr/gateway/internal/vault"
	"github.com/agenr/gateway/pkg/apikey"
	"github.com/agenr/gateway/pkg/user"
)

// Run is the main application entry point: it reads config, connects to
// infrastructure, and starts the runtime mode requested by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting agenr gateway", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// domain holds every component shared by both runAPI and runWorker, so the
// worker process doesn't re-derive wiring the API process also needs.
type domain struct {
	auditWriter  *audit.Writer
	authn        *auth.Authenticator
	loginLimiter *auth.LoginRateLimiter
	vaultSvc     *vault.Vault
	registry     *adapter.Registry
	adapterSvc   *adapter.Service
	genjobSvc    *genjob.Service
	idemStore    *idempotency.Store
	confirmSvc   *confirm.Service
	confirmStr   *confirm.Store
}

// buildDomain constructs the credential vault, adapter registry, and the
// generation-job, idempotency and confirmation-token services behind them —
// every component both runAPI and runWorker need.
func buildDomain(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*domain, error) {
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)

	authStore := auth.NewStore(db)
	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return nil, fmt.Errorf("parsing session max age %q: %w", cfg.SessionMaxAge, err)
	}
	authn := auth.NewAuthenticator(authStore, sessionMaxAge)
	loginLimiter := auth.NewLoginRateLimiter(rdb, 10, 15*time.Minute)

	kmsRootSecret := cfg.KMSRootSecret
	if kmsRootSecret == "" {
		kmsRootSecret = auth.GenerateDevSecret()
		logger.Info("vault: using auto-generated dev KMS root secret (set AGENR_KMS_ROOT_SECRET in production)")
	}
	kms := vault.NewLocalKMS(kmsRootSecret)
	vaultSvc := vault.New(db, kms, auditWriter, logger, cfg.KMSKeyID)

	adapterStore := adapter.NewStore(db)
	registry, err := adapter.NewRegistry(adapterStore, logger)
	if err != nil {
		return nil, fmt.Errorf("creating adapter registry: %w", err)
	}
	if err := adapter.LoadBundled(ctx, adapterStore, cfg.BundledAdaptersDir, logger); err != nil {
		logger.Warn("loading bundled adapters", "error", err)
	}
	if err := registry.Restore(ctx, cfg.RuntimeAdaptersDir); err != nil {
		logger.Warn("restoring adapter source files", "error", err)
	}
	if err := registry.Sync(ctx); err != nil {
		return nil, fmt.Errorf("syncing adapter registry: %w", err)
	}

	refresher := oauthrefresh.New(vaultSvc, newAdapterEndpointResolver(registry, vaultSvc), auditWriter, logger)
	vaultSvc.SetRefresher(refresher)

	adapterSvc := adapter.NewService(adapterStore, registry,
		filepath.Join(cfg.RuntimeAdaptersDir, "sandbox"),
		filepath.Join(cfg.RuntimeAdaptersDir, "public"),
		filepath.Join(cfg.RuntimeAdaptersDir, "rejected"))

	genjobStore := genjob.NewStore(db)
	jobPollInterval := time.Duration(cfg.JobPollIntervalMs) * time.Millisecond
	genjobSvc := genjob.NewService(genjobStore, adapterSvc, genjob.NewSkeletonGenerator(os.Stderr), logger, jobPollInterval)
	if err := genjobSvc.RecoverStaleJobs(ctx); err != nil {
		logger.Error("recovering stale generation jobs", "error", err)
	}

	idemStore := idempotency.NewStore(db)

	confirmStore := confirm.NewStore(db)
	confirmSvc := confirm.NewService(confirmStore, confirm.Policy(cfg.Policy()), cfg.MaxExecuteAmountCents)

	return &domain{
		auditWriter:  auditWriter,
		authn:        authn,
		loginLimiter: loginLimiter,
		vaultSvc:     vaultSvc,
		registry:     registry,
		adapterSvc:   adapterSvc,
		genjobSvc:    genjobSvc,
		idemStore:    idemStore,
		confirmSvc:   confirmSvc,
		confirmStr:   confirmStore,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	d, err := buildDomain(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	defer d.auditWriter.Close()

	if err := apikey.NewService(db, logger).EnsureBootstrapAdmin(ctx, cfg.BootstrapAPIKey); err != nil {
		return fmt.Errorf("ensuring bootstrap admin key: %w", err)
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, d.authn, d.loginLimiter)

	// Idempotency replay/capture wraps the execute, adapter and credential
	// routers — a retried call carrying the same Idempotency-Key must never
	// reach one of their handlers twice. It is a pass-through for requests
	// without the header, so mounting it in front of discover/query is
	// harmless. The /connect, /api-keys, /admin/credentials, /adapters/jobs
	// and /audit routers are mounted without it.
	idempotent := srv.APIRouter.With(idempotency.Middleware(d.idemStore, logger))

	journalStore := journal.NewStore(db)
	executeSvc := execute.NewService(d.registry, d.vaultSvc, d.confirmSvc, journalStore, d.auditWriter, logger)
	executeHandler := execute.NewHandler(executeSvc, logger)
	idempotent.Mount("/agp", executeHandler.Routes())

	genjobStore := genjob.NewStore(db)
	adapterHandler := adapter.NewHandler(adapter.NewStore(db), d.adapterSvc, d.genjobSvc, d.auditWriter, logger)
	idempotent.Mount("/adapters", adapterHandler.Routes())

	genjobHandler := genjob.NewHandler(genjobStore, logger)
	srv.APIRouter.Mount("/adapters/jobs", genjobHandler.Routes())

	credentialHandler := credential.NewHandler(logger, d.vaultSvc, d.auditWriter, db)
	idempotent.Mount("/credentials", credentialHandler.Routes())
	srv.APIRouter.Route("/admin/credentials", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Mount("/", credentialHandler.AdminRoutes())
	})

	userStore := user.NewStore(db)
	userHandler := user.NewHandler(userStore, userStore, d.vaultSvc, d.registry, d.auditWriter, logger, cfg.BaseURL)
	srv.APIRouter.Mount("/connect", userHandler.Routes())

	srv.APIRouter.Route("/api-keys", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Mount("/", apikey.NewHandler(logger, d.auditWriter, db).Routes())
	})

	auditHandler := audit.NewHandler(db, logger)
	srv.APIRouter.Mount("/audit", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	d, err := buildDomain(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	defer d.auditWriter.Close()

	logger.Info("worker started")

	idemSweeper := idempotency.NewSweeper(d.idemStore, cfg.IdempotencyTTL, logger)
	confirmSweeper := confirm.NewSweeper(d.confirmStr, rdb, logger)

	errCh := make(chan error, 3)
	go func() { errCh <- d.genjobSvc.Run(ctx) }()
	go func() { errCh <- idemSweeper.Start(ctx) }()
	go func() { errCh <- confirmSweeper.Start(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
