package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/notify"
	"github.com/platinummonkey/sitesearch/pkg/observability"
	"github.com/platinummonkey/sitesearch/pkg/search"
	"github.com/platinummonkey/sitesearch/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Search        SearchConfig
	Redis         RedisConfig
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
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	PostgresURL string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// ConnectionConfig converts the settings for the connection manager
func (d DatabaseConfig) ConnectionConfig() postgres.ConnectionConfig {
	cfg := postgres.DefaultConnectionConfig(d.PostgresURL)
	cfg.ReplicaURLs = d.ReplicaURLs
	cfg.MaxConns = d.MaxConns
	cfg.MinConns = d.MinConns
	cfg.Timeout = d.Timeout
	return cfg
}

// SearchConfig holds index and query settings
type SearchConfig struct {
	Table              string
	SchemaFile         string
	PerPage            int
	ImageSize          string
	HumanDates         bool // render result dates relative to now
	RebuildConcurrency int
	// RebuildSchedule is a cron expression for the off-peak from-scratch
	// rebuild; empty disables it
	RebuildSchedule string
	RebuildTimeout  time.Duration
}

// RedisConfig holds change notification settings. An empty URL disables
// the listener.
type RedisConfig struct {
	URL     string
	Channel string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	OTel           observability.OTelConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Search:        loadSearchConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SITESEARCH_HOST", "0.0.0.0"),
		Port:            getEnv("SITESEARCH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SITESEARCH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SITESEARCH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SITESEARCH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SITESEARCH_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PostgresURL: getEnv("SITESEARCH_POSTGRES_URL", ""),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("SITESEARCH_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("SITESEARCH_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("SITESEARCH_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("SITESEARCH_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

func loadSearchConfig() SearchConfig {
	return SearchConfig{
		Table:              getEnv("SITESEARCH_TABLE", index.DefaultTable),
		SchemaFile:         getEnv("SITESEARCH_SCHEMA_FILE", "sitesearch.yaml"),
		PerPage:            getEnvInt("SITESEARCH_PER_PAGE", search.DefaultPerPage),
		ImageSize:          getEnv("SITESEARCH_IMAGE_SIZE", search.DefaultImageSize),
		HumanDates:         getEnvBool("SITESEARCH_HUMAN_DATES", false),
		RebuildConcurrency: getEnvInt("SITESEARCH_REBUILD_CONCURRENCY", 1),
		RebuildSchedule:    getEnv("SITESEARCH_REBUILD_SCHEDULE", ""),
		RebuildTimeout:     getEnvDuration("SITESEARCH_REBUILD_TIMEOUT", 6*time.Hour),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:     getEnv("SITESEARCH_REDIS_URL", ""),
		Channel: getEnv("SITESEARCH_REDIS_CHANNEL", notify.DefaultChannel),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("SITESEARCH_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("SITESEARCH_METRICS_ENABLED", true),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("SITESEARCH_OTEL_ENABLED", false),
			Endpoint:       getEnv("SITESEARCH_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("SITESEARCH_OTEL_SERVICE_NAME", "sitesearch"),
			ServiceVersion: getEnv("SITESEARCH_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("SITESEARCH_OTEL_INSECURE", true),
			SampleRatio:    getEnvFloat("SITESEARCH_OTEL_SAMPLE_RATIO", 1),
		},
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("postgres max connections must be positive, got %d", c.Database.MaxConns)
	}

	if !identifierPattern.MatchString(c.Search.Table) {
		return fmt.Errorf("invalid search table name: %q", c.Search.Table)
	}
	if c.Search.SchemaFile == "" {
		return fmt.Errorf("schema file is required")
	}
	if c.Search.PerPage < 1 || c.Search.PerPage > search.MaxPerPage {
		return fmt.Errorf("per page must be between 1 and %d, got %d", search.MaxPerPage, c.Search.PerPage)
	}
	if c.Search.RebuildConcurrency < 1 {
		return fmt.Errorf("rebuild concurrency must be at least 1, got %d", c.Search.RebuildConcurrency)
	}
	if c.Search.RebuildSchedule != "" {
		if _, err := cron.ParseStandard(c.Search.RebuildSchedule); err != nil {
			return fmt.Errorf("invalid rebuild schedule %q: %w", c.Search.RebuildSchedule, err)
		}
	}

	if c.Redis.URL != "" && c.Redis.Channel == "" {
		return fmt.Errorf("redis channel is required when a redis URL is set")
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %g", r)
		}
	}
	return nil
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

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
