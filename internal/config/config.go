// Package config provides configuration management for the call scanner service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Resolver ResolverConfig
	Engine   EngineConfig
	Ingest   IngestConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

// ServerConfig holds the reporting API server configuration
type ServerConfig struct {
	Host string
	Port string
}

// StorageConfig holds snapshot store configuration.
// Backend selects the store implementation: "redis" or "postgres".
type StorageConfig struct {
	Backend  string
	Redis    RedisConfig
	Postgres PostgresConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	SnapshotKey    string
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// ResolverConfig holds market data resolver configuration
type ResolverConfig struct {
	MetadataURL       string
	TokenListURL      string
	PriceURL          string
	SupplyRPCURL      string
	CallTimeout       time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerSecond int
}

// EngineConfig holds ATH engine configuration
type EngineConfig struct {
	PollInterval time.Duration
	Concurrency  int
	// MaxTickFailures is the number of consecutive unresolved ticks a record
	// survives before eviction. The observed upstream behavior is strict
	// evict-on-first-failure, so the default is 1.
	MaxTickFailures int
}

// IngestConfig holds inbound message handling configuration
type IngestConfig struct {
	MonitoredChannels []string
	ExcludedAuthors   []string
}

// NotifyConfig holds alert delivery configuration
type NotifyConfig struct {
	WebhookURL  string
	BotImageURL string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "redis"),
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
				SnapshotKey:    getEnv("REDIS_SNAPSHOT_KEY", "calls:snapshot"),
			},
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "call_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations"),
			},
		},
		Resolver: ResolverConfig{
			MetadataURL:       getEnv("RESOLVER_METADATA_URL", "https://api.mainnet-beta.solana.com"),
			TokenListURL:      getEnv("RESOLVER_TOKEN_LIST_URL", "https://token.jup.ag/strict"),
			PriceURL:          getEnv("RESOLVER_PRICE_URL", "https://api-v3.raydium.io"),
			SupplyRPCURL:      getEnv("RESOLVER_SUPPLY_RPC_URL", "https://api.mainnet-beta.solana.com"),
			CallTimeout:       getEnvAsDuration("RESOLVER_CALL_TIMEOUT", 10*time.Second),
			MaxAttempts:       getEnvAsInt("RESOLVER_MAX_ATTEMPTS", 3),
			RetryDelay:        getEnvAsDuration("RESOLVER_RETRY_DELAY", 2*time.Second),
			RequestsPerSecond: getEnvAsInt("RESOLVER_REQUESTS_PER_SECOND", 10),
		},
		Engine: EngineConfig{
			PollInterval:    getEnvAsDuration("ENGINE_POLL_INTERVAL", 60*time.Second),
			Concurrency:     getEnvAsInt("ENGINE_CONCURRENCY", 8),
			MaxTickFailures: getEnvAsInt("ENGINE_MAX_TICK_FAILURES", 1),
		},
		Ingest: IngestConfig{
			MonitoredChannels: getEnvAsList("INGEST_MONITORED_CHANNELS"),
			ExcludedAuthors:   getEnvAsList("INGEST_EXCLUDED_AUTHORS"),
		},
		Notify: NotifyConfig{
			WebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
			BotImageURL: getEnv("NOTIFY_BOT_IMAGE_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration invariants that would otherwise surface as
// runtime misbehavior deep inside the engine or resolver.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "redis", "postgres":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q (must be redis or postgres)", c.Storage.Backend)
	}

	if c.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("RESOLVER_MAX_ATTEMPTS must be at least 1, got %d", c.Resolver.MaxAttempts)
	}
	if c.Engine.PollInterval < time.Second {
		return fmt.Errorf("ENGINE_POLL_INTERVAL must be at least 1s, got %v", c.Engine.PollInterval)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("ENGINE_CONCURRENCY must be at least 1, got %d", c.Engine.Concurrency)
	}
	if c.Engine.MaxTickFailures < 1 {
		return fmt.Errorf("ENGINE_MAX_TICK_FAILURES must be at least 1, got %d", c.Engine.MaxTickFailures)
	}

	return nil
}

// PostgresURL builds the database URL used by migrations
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma-separated environment variable as a string slice
func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}
