package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (optional hot quota counters)
	Redis RedisConfig

	// Resolver configuration
	Resolver ResolverConfig

	// Catalog configuration
	Catalog CatalogConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string // comma-separated read replica URLs
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis settings for the hot quota counter ledger.
// Redis is optional: when URL is empty the Postgres ledger serves every
// quota type.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	KeyPrefix  string
}

// Enabled reports whether a Redis ledger should be constructed
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// ResolverConfig holds permission resolution cache settings
type ResolverConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// CatalogConfig holds permission catalog override settings
type CatalogConfig struct {
	// OverrideFile is an optional YAML file that overrides catalog entries.
	// Empty means the compiled-in table is used as-is.
	OverrideFile string
	// WatchOverride reloads the override file on change
	WatchOverride bool
}

// AuditConfig holds audit trail sink settings
type AuditConfig struct {
	// Sink selects the event sink: postgres, sqlite, file, or none
	Sink string
	// SQLitePath is the database path for the sqlite sink
	SQLitePath string
	// FilePath is the NDJSON path for the file sink
	FilePath string
	// LogAllRequests records every HTTP request, not just mutations
	LogAllRequests bool

	// Retention and S3 archive settings (sweeper)
	RetentionDays int
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	Compress      bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Resolver:      loadResolverConfig(),
		Catalog:       loadCatalogConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("GATEHOUSE_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("GATEHOUSE_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("GATEHOUSE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("GATEHOUSE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("GATEHOUSE_REDIS_URL", ""),
		Password:   getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("GATEHOUSE_REDIS_DB", 0),
		MaxRetries: getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", 10),
		KeyPrefix:  getEnv("GATEHOUSE_REDIS_KEY_PREFIX", "gatehouse"),
	}
}

// loadResolverConfig loads resolver cache configuration from environment
func loadResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheSize: getEnvInt("GATEHOUSE_RESOLVER_CACHE_SIZE", 10000),
		CacheTTL:  getEnvDuration("GATEHOUSE_RESOLVER_CACHE_TTL", 30*time.Second),
	}
}

// loadCatalogConfig loads catalog override configuration from environment
func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		OverrideFile:  getEnv("GATEHOUSE_CATALOG_OVERRIDE_FILE", ""),
		WatchOverride: getEnvBool("GATEHOUSE_CATALOG_WATCH_OVERRIDE", true),
	}
}

// loadAuditConfig loads audit sink configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Sink:           getEnv("GATEHOUSE_AUDIT_SINK", "postgres"),
		SQLitePath:     getEnv("GATEHOUSE_AUDIT_SQLITE_PATH", "gatehouse-audit.db"),
		FilePath:       getEnv("GATEHOUSE_AUDIT_FILE_PATH", "gatehouse-audit.ndjson"),
		LogAllRequests: getEnvBool("GATEHOUSE_AUDIT_LOG_ALL_REQUESTS", false),
		RetentionDays:  getEnvInt("GATEHOUSE_AUDIT_RETENTION_DAYS", 90),
		S3Bucket:       getEnv("GATEHOUSE_AUDIT_S3_BUCKET", ""),
		S3Region:       getEnv("GATEHOUSE_AUDIT_S3_REGION", "us-east-1"),
		S3Prefix:       getEnv("GATEHOUSE_AUDIT_S3_PREFIX", "audit"),
		S3Endpoint:     getEnv("GATEHOUSE_AUDIT_S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("GATEHOUSE_AUDIT_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("GATEHOUSE_AUDIT_S3_SECRET_KEY", ""),
		Compress:       getEnvBool("GATEHOUSE_AUDIT_S3_COMPRESS", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEHOUSE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEHOUSE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEHOUSE_OTEL_SERVICE_NAME", "gatehouse"),
		OTelServiceVersion: getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GATEHOUSE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Resolver.CacheSize <= 0 {
		return fmt.Errorf("resolver cache size must be positive")
	}
	if c.Resolver.CacheTTL <= 0 {
		return fmt.Errorf("resolver cache TTL must be positive")
	}

	switch c.Audit.Sink {
	case "postgres", "sqlite", "file", "none":
	default:
		return fmt.Errorf("invalid audit sink: %s (must be postgres, sqlite, file, or none)", c.Audit.Sink)
	}
	if c.Audit.Sink == "sqlite" && c.Audit.SQLitePath == "" {
		return fmt.Errorf("sqlite path is required for sqlite audit sink")
	}
	if c.Audit.Sink == "file" && c.Audit.FilePath == "" {
		return fmt.Errorf("file path is required for file audit sink")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
