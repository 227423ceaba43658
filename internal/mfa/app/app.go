package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/bartab-mfa/internal/mfa/http"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/replay"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/service"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/postgres"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/bartab-mfa/pkg/jwtx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/otpx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	startupTimeout = 10 * time.Second
)

// Application wires the MFA service and owns its lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	// Core dependencies
	db       store.Store
	keys     *jwtx.RemoteKeySet
	guard    replay.Guard
	redis    *redis.Client // nil unless the redis replay backend is used
	registry *prometheus.Registry
	metrics  *service.Metrics

	// Services
	mfaService          *service.MFAService
	housekeepingService *service.HousekeepingService // nil unless the memory replay backend is used

	// Background work
	cancelBackground context.CancelFunc

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mfa-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		clock:    clockwork.NewRealClock(),
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = service.NewMetrics(app.registry)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initReplayGuard(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initKeys()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancelBackground = cancel

	// Prime the key set; readiness reports degraded until this succeeds.
	if err := app.keys.Refresh(ctx); err != nil {
		app.logger.Warn("initial jwks fetch failed", "url", app.cfg.JWKSURL, "error", err)
	}
	go app.keys.Run(ctx, app.cfg.JWKSRefreshInterval)

	if app.housekeepingService != nil {
		if err := app.housekeepingService.Start(); err != nil {
			cancel()
			return fmt.Errorf("failed to start housekeeping: %w", err)
		}
	}

	app.logger.Info("mfa service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"database", app.cfg.DatabaseDriver,
		"replay", app.cfg.ReplayBackend,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mfa service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.cancelBackground != nil {
		app.cancelBackground()
	}
	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
	}

	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("mfa service stopped")
	return errors.Join(errs...)
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	case DriverMemory:
		app.logger.Warn("using in-memory store, state is lost on restart")
		db = memory.NewStore()
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(dsn)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initReplayGuard selects the replay guard backend
func (app *Application) initReplayGuard() error {
	ttl := replay.TTL(time.Duration(app.cfg.TOTPPeriod)*time.Second, uint(app.cfg.TOTPSkew))

	if app.cfg.ReplayBackend != ReplayRedis {
		guard := replay.NewMemoryGuard(app.clock, ttl)
		app.guard = guard
		app.housekeepingService = service.NewHousekeepingService(guard, app.clock, app.logger, app.cfg.SweepInterval)
		app.housekeepingService.Metrics = app.metrics
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.redis = client
	app.guard = replay.NewRedisGuard(client, ttl)
	app.logger.Info("replay guard using redis", "addr", app.cfg.RedisAddr)
	return nil
}

// initKeys sets up the JWKS mirror of the auth service
func (app *Application) initKeys() {
	app.keys = jwtx.NewRemoteKeySet(app.cfg.JWKSURL, nil, app.logger)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	digits := otp.DigitsSix
	if app.cfg.TOTPDigits == 8 {
		digits = otp.DigitsEight
	}

	app.mfaService = &service.MFAService{
		Store: app.db,
		Engine: otpx.Engine{
			Period:    uint(app.cfg.TOTPPeriod),
			Digits:    digits,
			Algorithm: otpx.DefaultAlgorithm,
			Skew:      uint(app.cfg.TOTPSkew),
		},
		Guard:        app.guard,
		Clock:        app.clock,
		StoreTimeout: app.cfg.StoreTimeout,
		Metrics:      app.metrics,
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	verifier := jwtx.NewVerifier(app.keys, jwtx.VerifyOptions{
		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,
		Leeway:   30 * time.Second,
	})

	router := httpapi.NewRouter(
		app.keys,
		verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.MFAService = app.mfaService
	router.Gatherer = app.registry
	if pinger, ok := app.guard.(httpapi.Pinger); ok {
		router.Replay = pinger
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the HTTP handler without starting a listener.
func (app *Application) Handler() http.Handler { return app.router }

// Store returns the state store, for seeding accounts synced from the auth service.
func (app *Application) Store() store.Store { return app.db }
