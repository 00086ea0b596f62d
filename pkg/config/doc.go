// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEHOUSE_HOST="0.0.0.0"
//	GATEHOUSE_PORT="8080"
//	GATEHOUSE_HEALTH_PORT="9090"
//	GATEHOUSE_READ_TIMEOUT="15s"
//	GATEHOUSE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	GATEHOUSE_POSTGRES_URL="postgres://localhost/gatehouse"
//	GATEHOUSE_POSTGRES_REPLICA_URLS="postgres://replica1/gatehouse,postgres://replica2/gatehouse"
//	GATEHOUSE_POSTGRES_MAX_CONNS="25"
//
// Redis settings (optional, hot quota counters):
//
//	GATEHOUSE_REDIS_URL="redis://localhost:6379"
//	GATEHOUSE_REDIS_KEY_PREFIX="gatehouse"
//
// Resolver and catalog settings:
//
//	GATEHOUSE_RESOLVER_CACHE_SIZE="10000"
//	GATEHOUSE_RESOLVER_CACHE_TTL="30s"
//	GATEHOUSE_CATALOG_OVERRIDE_FILE="/etc/gatehouse/catalog.yaml"
//
// Audit settings:
//
//	GATEHOUSE_AUDIT_SINK="postgres"  # postgres, sqlite, file, none
//	GATEHOUSE_AUDIT_RETENTION_DAYS="90"
//	GATEHOUSE_AUDIT_S3_BUCKET="gatehouse-audit-archive"
//
// Observability settings:
//
//	GATEHOUSE_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEHOUSE_METRICS_ENABLED="true"
//	GATEHOUSE_OTEL_ENABLED="true"
//	GATEHOUSE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Audit sink: %s\n", cfg.Audit.Sink)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database and Redis configuration
//   - pkg/observability: Uses observability configuration
package config
