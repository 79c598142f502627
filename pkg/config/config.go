package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Postgres configuration
	Postgres PostgresConfig

	// Redis configuration
	Redis RedisConfig

	// Cache tunables
	Cache CacheConfig

	// Check service tunables
	Check CheckConfig

	// Event stream configuration
	Events EventsConfig

	// Expiry sweep configuration
	Expiry ExpiryConfig

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

// PostgresConfig holds the authoritative store configuration
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the shared cache / event bus configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// CacheConfig holds the permission-cache tunables
type CacheConfig struct {
	// TTL is the safety-net expiry on cached permission sets
	TTL time.Duration
	// DegradedTTL replaces TTL while invalidation is failing
	DegradedTTL time.Duration
	// OpTimeout bounds each individual cache operation
	OpTimeout time.Duration
}

// CheckConfig holds permission-check tunables
type CheckConfig struct {
	BatchLimit      int
	ResolverTimeout time.Duration
}

// EventsConfig holds role-event stream configuration
type EventsConfig struct {
	Channel string
}

// ExpiryConfig holds the assignment-expiry sweep configuration
type ExpiryConfig struct {
	Schedule  string
	BatchSize int
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

// LoadConfig loads configuration from environment variables. If
// WARDEN_CONFIG_FILE is set (or a path is passed explicitly), the YAML file
// overlays the tunable subset on top of the environment values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Postgres:      loadPostgresConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Check:         loadCheckConfig(),
		Events:        loadEventsConfig(),
		Expiry:        loadExpiryConfig(),
		Observability: loadObservabilityConfig(),
	}

	if configFile == "" {
		configFile = getEnv("WARDEN_CONFIG_FILE", "")
	}
	if configFile != "" {
		if err := cfg.applyFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to apply config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
		Port:            getEnv("WARDEN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
	}
}

// loadPostgresConfig loads the store configuration from environment
func loadPostgresConfig() PostgresConfig {
	return PostgresConfig{
		URL:             getEnv("WARDEN_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("WARDEN_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("WARDEN_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("WARDEN_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads the cache configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("WARDEN_REDIS_URL", "redis://localhost:6379/0"),
		Password:   getEnv("WARDEN_REDIS_PASSWORD", ""),
		DB:         getEnvInt("WARDEN_REDIS_DB", 0),
		MaxRetries: getEnvInt("WARDEN_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("WARDEN_REDIS_POOL_SIZE", 10),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:         getEnvDuration("WARDEN_CACHE_TTL", 15*time.Minute),
		DegradedTTL: getEnvDuration("WARDEN_CACHE_DEGRADED_TTL", time.Minute),
		OpTimeout:   getEnvDuration("WARDEN_CACHE_OP_TIMEOUT", 50*time.Millisecond),
	}
}

func loadCheckConfig() CheckConfig {
	return CheckConfig{
		BatchLimit:      getEnvInt("WARDEN_CHECK_BATCH_LIMIT", 100),
		ResolverTimeout: getEnvDuration("WARDEN_RESOLVER_TIMEOUT", 150*time.Millisecond),
	}
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		Channel: getEnv("WARDEN_EVENT_CHANNEL", "warden.role-events"),
	}
}

func loadExpiryConfig() ExpiryConfig {
	return ExpiryConfig{
		Schedule:  getEnv("WARDEN_EXPIRY_SCHEDULE", "* * * * *"),
		BatchSize: getEnvInt("WARDEN_EXPIRY_BATCH_SIZE", 500),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WARDEN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
		OTelServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
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

	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.DegradedTTL <= 0 {
		return fmt.Errorf("degraded cache TTL must be positive")
	}
	if c.Cache.DegradedTTL >= c.Cache.TTL {
		return fmt.Errorf("degraded cache TTL must be shorter than the base TTL")
	}

	if c.Check.BatchLimit <= 0 {
		return fmt.Errorf("check batch limit must be positive")
	}
	if c.Check.ResolverTimeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive")
	}

	if c.Events.Channel == "" {
		return fmt.Errorf("event channel is required")
	}

	if c.Expiry.BatchSize <= 0 {
		return fmt.Errorf("expiry batch size must be positive")
	}
	if _, err := cron.ParseStandard(c.Expiry.Schedule); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", c.Expiry.Schedule, err)
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

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
