package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/basestub/basestub/pkg/observability"
	"github.com/basestub/basestub/pkg/storageblob"
)

// Config holds all application configuration
type Config struct {
	// SupabaseURL is the virtual host the emulator intercepts;
	// requests to any other host pass through untouched.
	SupabaseURL string

	// Debug enables debug-level structured logging.
	Debug bool

	// Server configuration
	Server ServerConfig

	// Database is the embedded engine's DSN (":memory:" or a file path)
	Database string

	// Storage selects and configures the blob backend
	Storage storageblob.Config

	// Pooler tunes the connection pooler's queue
	Pooler PoolerConfig

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

// PoolerConfig holds connection-pooler queue settings
type PoolerConfig struct {
	DefaultTimeout time.Duration
	MaxQueueSize   int
	AgingThreshold time.Duration
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
		SupabaseURL:   getEnv("BASESTUB_SUPABASE_URL", "http://localhost:54321"),
		Debug:         getEnvBool("BASESTUB_DEBUG", false),
		Server:        loadServerConfig(),
		Database:      getEnv("BASESTUB_DATABASE", ":memory:"),
		Storage:       loadStorageConfig(),
		Pooler:        loadPoolerConfig(),
		Observability: loadObservabilityConfig(),
	}
	if cfg.Debug {
		cfg.Observability.LogLevel = observability.DebugLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BASESTUB_HOST", "0.0.0.0"),
		Port:            getEnv("BASESTUB_PORT", "54321"),
		ReadTimeout:     getEnvDuration("BASESTUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BASESTUB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BASESTUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BASESTUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BASESTUB_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads blob backend configuration from environment
func loadStorageConfig() storageblob.Config {
	cfg := storageblob.DefaultConfig()

	if backendType := getEnv("BASESTUB_STORAGE_BACKEND", ""); backendType != "" {
		cfg.Type = backendType
	}

	// S3 config
	if s3Endpoint := getEnv("BASESTUB_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("BASESTUB_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("BASESTUB_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("BASESTUB_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("BASESTUB_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("BASESTUB_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis read-through cache config
	if cacheEnabled := getEnv("BASESTUB_BLOB_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheTTL := getEnvDuration("BASESTUB_BLOB_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}
	if redisURL := getEnv("BASESTUB_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("BASESTUB_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("BASESTUB_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}

	return cfg
}

// loadPoolerConfig loads pooler queue settings from environment
func loadPoolerConfig() PoolerConfig {
	return PoolerConfig{
		DefaultTimeout: getEnvDuration("BASESTUB_DEFAULT_TIMEOUT", 30*time.Second),
		MaxQueueSize:   getEnvInt("BASESTUB_MAX_QUEUE_SIZE", 1000),
		AgingThreshold: getEnvDuration("BASESTUB_AGING_THRESHOLD", 50*time.Millisecond),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("BASESTUB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BASESTUB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BASESTUB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BASESTUB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BASESTUB_OTEL_SERVICE_NAME", "basestub"),
		OTelServiceVersion: getEnv("BASESTUB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BASESTUB_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("supabase URL is required")
	}
	if _, err := url.Parse(c.SupabaseURL); err != nil {
		return fmt.Errorf("invalid supabase URL: %w", err)
	}

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

	if c.Database == "" {
		return fmt.Errorf("database DSN is required")
	}

	// Validate storage config based on backend type
	switch c.Storage.Type {
	case storageblob.TypeMemory, storageblob.TypeDisabled, "":
	case storageblob.TypeS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, s3, or disabled)", c.Storage.Type)
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the blob cache is enabled")
	}

	if c.Pooler.MaxQueueSize <= 0 {
		return fmt.Errorf("pooler max queue size must be positive")
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
