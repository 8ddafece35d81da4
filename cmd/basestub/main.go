package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/basestub/basestub/pkg/auth"
	"github.com/basestub/basestub/pkg/authrouter"
	"github.com/basestub/basestub/pkg/config"
	"github.com/basestub/basestub/pkg/datarouter"
	"github.com/basestub/basestub/pkg/fetchadapter"
	"github.com/basestub/basestub/pkg/middleware"
	"github.com/basestub/basestub/pkg/observability"
	"github.com/basestub/basestub/pkg/pooler"
	"github.com/basestub/basestub/pkg/rls"
	"github.com/basestub/basestub/pkg/schema"
	"github.com/basestub/basestub/pkg/sqlengine"
	"github.com/basestub/basestub/pkg/storageblob"
	"github.com/basestub/basestub/pkg/storagehandler"
	"github.com/basestub/basestub/pkg/storagerouter"
)

const (
	refreshTokenSweepSpec = "0 3 * * *"
	storageSweepSpec      = "30 3 * * *"
)

func main() {
	// Load configuration from environment
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting basestub")
	logger.Infof("Intercepting host: %s", cfg.SupabaseURL)

	// Initialize OpenTelemetry (if enabled)
	ctx := context.Background()
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		// Don't fail - continue without OTel
	}

	// Open the embedded engine and install the schemas
	engine, err := sqlengine.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open embedded engine: %v", err)
	}
	if err := schema.InstallAuthSchema(ctx, engine); err != nil {
		log.Fatalf("Failed to install auth schema: %v", err)
	}
	if err := schema.InstallStorageSchema(ctx, engine); err != nil {
		log.Fatalf("Failed to install storage schema: %v", err)
	}
	if err := schema.RegisterFunctions(ctx, engine); err != nil {
		log.Fatalf("Failed to register SQL functions: %v", err)
	}
	logger.Infof("Embedded engine ready: %s", cfg.Database)

	// Auth subsystem
	authStore := auth.NewStore(engine)
	authHandler := auth.NewHandler(authStore)
	authCleanup := auth.NewCleanupScheduler(authStore, logger)
	if err := authCleanup.Start(refreshTokenSweepSpec); err != nil {
		logger.WithError(err).Error("Failed to start refresh-token sweep")
	}

	// Connection pooler
	registry := prometheus.NewRegistry()
	pool := pooler.New(engine, pooler.Config{
		MaxQueueSize:   cfg.Pooler.MaxQueueSize,
		DefaultTimeout: cfg.Pooler.DefaultTimeout,
		AgingThreshold: cfg.Pooler.AgingThreshold,
	})
	if cfg.Observability.MetricsEnabled {
		pool = pool.WithMetrics(pooler.NewPromMetrics(registry))
	}
	if err := pool.Start(); err != nil {
		log.Fatalf("Failed to start pooler: %v", err)
	}

	// Data router with row-level security
	policies := rls.NewPolicyStore()
	dataRouter, err := datarouter.New(engine, pool, policies, authStore)
	if err != nil {
		log.Fatalf("Failed to build data router: %v", err)
	}

	// Storage subsystem; nil backend means storage routes pass through
	blobBackend, err := storageblob.NewBackend(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize blob backend: %v", err)
	}
	var storageRoutes http.Handler
	var storageSweeper *storagehandler.Sweeper
	if blobBackend != nil {
		storageHandler := storagehandler.New(engine, blobBackend, authStore)
		storageRoutes = storagerouter.New(storageHandler, engine, authStore)
		storageSweeper = storagehandler.NewSweeper(storageHandler, logger)
		if err := storageSweeper.Start(storageSweepSpec); err != nil {
			logger.WithError(err).Error("Failed to start storage sweep")
		}
		logger.Infof("Blob backend initialized: %s", cfg.Storage.Type)
	} else {
		logger.Info("Storage backend disabled, /storage/v1 passes through")
	}

	// Top-level adapter
	adapter, err := fetchadapter.New(fetchadapter.Options{
		SupabaseURL:   cfg.SupabaseURL,
		AuthRouter:    authrouter.New(authHandler),
		DataRouter:    dataRouter,
		StorageRouter: storageRoutes,
		Passthrough:   fetchadapter.NetworkPassthrough(),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("Failed to build fetch adapter: %v", err)
	}

	// Wrap with rate limiting (per-user once a token verified, per-IP
	// otherwise), metrics, and OpenTelemetry HTTP instrumentation
	var handler http.Handler = adapter
	codec, err := authStore.Codec(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize token codec: %v", err)
	}
	rateLimit := middleware.NewRateLimitMiddleware()
	handler = middleware.NewAuthMiddleware(codec, true).Handler(rateLimit.Handler(handler))
	if cfg.Observability.MetricsEnabled {
		metrics := observability.NewMetrics(registry)
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "basestub",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("OpenTelemetry HTTP instrumentation enabled")
	}

	// Create main HTTP server with timeouts
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Create separate health/metrics server
	healthChecker := observability.NewHealthChecker(nil, nil)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, healthChecker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
		logger.Info("Metrics endpoint enabled at /metrics")
	}

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	// Start health/metrics server in background
	go func() {
		logger.Infof("Starting health/metrics server on port %s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	// Setup graceful shutdown
	shutdownManager := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)

	shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
		logger.Info("Shutting down health server")
		return healthServer.Shutdown(ctx)
	})
	shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
		logger.Info("Stopping pooler")
		return pool.Stop()
	})
	shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
		authCleanup.Stop()
		if storageSweeper != nil {
			storageSweeper.Stop()
		}
		return engine.Close()
	})
	if otelProviders != nil {
		shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
			logger.Info("Shutting down OpenTelemetry")
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	// Start main server in background
	go func() {
		logger.Infof("Starting basestub on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	logger.Info("Server started successfully, waiting for shutdown signal")
	if err := shutdownManager.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info("Server shutdown complete")
}
