package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/catalog"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/resolver"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)
	logger.Info("Starting gatehouse authorization engine")

	// Metrics
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// OpenTelemetry
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// PostgreSQL
	var replicaURLs []string
	if cfg.Database.ReplicaURLs != "" {
		replicaURLs = strings.Split(cfg.Database.ReplicaURLs, ",")
	}
	connMgr, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: replicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	db := connMgr.Primary()

	// Stores and migrations
	principals := auth.NewPostgresStore(db)
	if err := principals.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate principal store: %v", err)
	}
	orgService := orgs.NewPostgresService(db)
	if err := orgService.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate organization store: %v", err)
	}
	pgLedger := quota.NewPostgresLedger(db)
	if err := pgLedger.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate quota ledger: %v", err)
	}

	// Quota ledger: Redis serves hot counters when configured, otherwise
	// the atomic Postgres increment carries everything
	var ledger quota.Ledger = pgLedger
	var redisClient *postgres.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = postgres.NewRedisClient(postgres.RedisOptions{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		ledger = quota.NewRedisLedger(redisClient.Client(), cfg.Redis.KeyPrefix)
		logger.Info("Using Redis quota ledger")
	}

	// Audit sink
	auditLogger, auditStore, err := buildAuditSink(cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize audit sink: %v", err)
	}

	// Entitlement catalog, with optional operator overrides
	cat := catalog.Default()
	if cfg.Catalog.OverrideFile != "" {
		cat, err = catalog.Load(cfg.Catalog.OverrideFile)
		if err != nil {
			log.Fatalf("Failed to load catalog override: %v", err)
		}
		if cfg.Catalog.WatchOverride {
			if err := cat.Watch(ctx, cfg.Catalog.OverrideFile, func(err error) {
				if err != nil {
					logger.WithError(err).Error("Catalog override reload failed")
				} else {
					logger.Info("Catalog override reloaded")
				}
			}); err != nil {
				log.Fatalf("Failed to watch catalog override: %v", err)
			}
		}
		logger.WithField("file", cfg.Catalog.OverrideFile).Info("Catalog override applied")
	}

	// Grant store and permission resolver
	rbacManager := rbac.NewManager(db, auditLogger, rbac.DefaultConfig())
	if err := rbacManager.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize grant store: %v", err)
	}
	res := resolver.New(principals, rbacManager.GetStore(), orgService, cat, resolver.Options{
		CacheSize: cfg.Resolver.CacheSize,
		CacheTTL:  cfg.Resolver.CacheTTL,
		Metrics:   metrics,
	})
	rbacManager.SetInvalidator(res)

	// Authorization facade
	authorizer := authz.New(res, ledger, authz.Options{
		Audit:   auditLogger,
		Metrics: metrics,
	})

	// API server
	var events *audit.Handlers
	if auditStore != nil {
		events = audit.NewHandlers(auditStore)
	}
	server := api.NewServer(api.Dependencies{
		Authorizer: authorizer,
		Resolver:   res,
		Principals: principals,
		Orgs:       orgService,
		Ledger:     ledger,
		RBAC:       rbacManager,
		Audit:      auditLogger,
		Events:     events,
		Logger:     logger,
		Metrics:    metrics,
	})

	handler := httputil.Chain(
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(1<<20),
	)(server.Router())
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "gatehouse")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	var rawRedis *redis.Client
	if redisClient != nil {
		rawRedis = redisClient.Client()
	}
	checker := observability.NewHealthChecker(db, rawRedis)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health endpoint listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if auditLogger != nil {
			return auditLogger.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return connMgr.Close()
	})

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

// buildAuditSink constructs the configured audit logger. Only the postgres
// sink supports the query/export endpoints, so the store is nil otherwise.
func buildAuditSink(cfg *config.Config, db *sql.DB) (audit.Logger, audit.Store, error) {
	switch cfg.Audit.Sink {
	case "postgres":
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres audit logger: %w", err)
		}
		return dbLogger, audit.NewDBStore(dbLogger), nil
	case "sqlite":
		sqliteLogger, err := audit.NewSQLiteLogger(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sqlite audit logger: %w", err)
		}
		return sqliteLogger, nil, nil
	case "file":
		fileConfig := audit.DefaultFileLoggerConfig()
		fileConfig.BasePath = cfg.Audit.FilePath
		fileLogger, err := audit.NewFileLogger(fileConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file audit logger: %w", err)
		}
		return fileLogger, nil, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit sink: %s", cfg.Audit.Sink)
	}
}
