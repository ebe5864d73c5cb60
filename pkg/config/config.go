package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const envPrefix = "GATEKEEPER_"

// Store kinds
const (
	StoreKindPostgres = "postgres"
	StoreKindMemory   = "memory"
)

// Cache kinds
const (
	CacheKindNone   = "none"
	CacheKindMemory = "memory"
	CacheKindRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Provider      identity.ProviderConfig
	Session       SessionConfig
	Cache         CacheConfig
	Observability ObservabilityConfig
}

// ServerConfig holds the health/metrics HTTP server configuration
type ServerConfig struct {
	Host            string
	HealthPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds store configuration
type DatabaseConfig struct {
	Kind        string
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	AutoMigrate bool
}

// SessionConfig holds session lifetime settings
type SessionConfig struct {
	DefaultTTL time.Duration

	// PurgeSchedule is a cron spec for the expired-session purge job; empty disables it
	PurgeSchedule string
	// PurgeRetention is how long ended sessions are kept before deletion
	PurgeRetention time.Duration

	// AuditRetention bounds audit rows kept in the database; zero keeps everything
	AuditRetention time.Duration
}

// CacheConfig holds session cache settings
type CacheConfig struct {
	Kind     string
	TTL      time.Duration
	Size     int
	RedisURL string
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
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel returns the OpenTelemetry settings in the form observability.InitOTel takes
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// fileConfig is the optional YAML overlay named by GATEKEEPER_CONFIG_FILE.
// Provider settings usually live here since they are keyed per provider.
type fileConfig struct {
	Provider *identity.ProviderConfig `yaml:"provider"`
}

// LoadConfig loads configuration from environment variables and the optional overlay file
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Provider:      loadProviderConfig(),
		Session:       loadSessionConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv(envPrefix+"CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays the YAML file at path. Environment settings win for the
// provider name and timeout; settings maps are merged with env taking precedence.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Provider != nil {
		if os.Getenv(envPrefix+"PROVIDER") == "" && fc.Provider.Name != "" {
			c.Provider.Name = fc.Provider.Name
		}
		if os.Getenv(envPrefix+"PROVIDER_TIMEOUT") == "" && fc.Provider.Timeout > 0 {
			c.Provider.Timeout = fc.Provider.Timeout
		}
		merged := make(map[string]string, len(fc.Provider.Settings)+len(c.Provider.Settings))
		for k, v := range fc.Provider.Settings {
			merged[k] = v
		}
		for k, v := range c.Provider.Settings {
			merged[k] = v
		}
		c.Provider.Settings = merged
	}
	return nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv(envPrefix+"HOST", "0.0.0.0"),
		HealthPort:      getEnv(envPrefix+"HEALTH_PORT", "9090"),
		ReadTimeout:     getEnvDuration(envPrefix+"READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration(envPrefix+"WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getEnvDuration(envPrefix+"SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadDatabaseConfig loads store configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Kind:        strings.ToLower(getEnv(envPrefix+"STORE", StoreKindPostgres)),
		URL:         getEnv(envPrefix+"DATABASE_URL", ""),
		MaxConns:    getEnvInt(envPrefix+"DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt(envPrefix+"DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration(envPrefix+"DATABASE_TIMEOUT", 5*time.Second),
		AutoMigrate: getEnvBool(envPrefix+"DATABASE_AUTO_MIGRATE", true),
	}
}

// loadProviderConfig reads the provider name and any GATEKEEPER_PROVIDER_SETTING_<KEY> values.
// Keys are lowercased, so GATEKEEPER_PROVIDER_SETTING_SECRET_KEY becomes secret_key.
func loadProviderConfig() identity.ProviderConfig {
	settingPrefix := envPrefix + "PROVIDER_SETTING_"
	settings := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, settingPrefix) || value == "" {
			continue
		}
		settings[strings.ToLower(strings.TrimPrefix(key, settingPrefix))] = value
	}

	return identity.ProviderConfig{
		Name:     strings.ToLower(getEnv(envPrefix+"PROVIDER", "supabase")),
		Timeout:  getEnvDuration(envPrefix+"PROVIDER_TIMEOUT", 10*time.Second),
		Settings: settings,
	}
}

// loadSessionConfig loads session lifetime settings from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultTTL:     getEnvDuration(envPrefix+"SESSION_TTL", time.Hour),
		PurgeSchedule:  getEnv(envPrefix+"SESSION_PURGE_SCHEDULE", "@every 15m"),
		PurgeRetention: getEnvDuration(envPrefix+"SESSION_PURGE_RETENTION", 7*24*time.Hour),
		AuditRetention: getEnvDuration(envPrefix+"AUDIT_RETENTION", 0),
	}
}

// loadCacheConfig loads session cache settings from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Kind:     strings.ToLower(getEnv(envPrefix+"CACHE", CacheKindMemory)),
		TTL:      getEnvDuration(envPrefix+"CACHE_TTL", time.Minute),
		Size:     getEnvInt(envPrefix+"CACHE_SIZE", 10000),
		RedisURL: getEnv(envPrefix+"REDIS_URL", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv(envPrefix+"LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool(envPrefix+"METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool(envPrefix+"OTEL_ENABLED", false),
		OTelEndpoint:       getEnv(envPrefix+"OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv(envPrefix+"OTEL_SERVICE_NAME", "gatekeeper"),
		OTelServiceVersion: getEnv(envPrefix+"OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool(envPrefix+"OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat(envPrefix+"OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	switch c.Database.Kind {
	case StoreKindPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required for postgres store")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
		}
	case StoreKindMemory:
	default:
		return fmt.Errorf("invalid store: %s (must be postgres or memory)", c.Database.Kind)
	}

	if c.Provider.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	if c.Session.DefaultTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.PurgeRetention < 0 {
		return fmt.Errorf("session purge retention cannot be negative")
	}

	switch c.Cache.Kind {
	case CacheKindNone:
	case CacheKindMemory:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive for memory cache")
		}
	case CacheKindRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
		if _, err := url.Parse(c.Cache.RedisURL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
	default:
		return fmt.Errorf("invalid cache: %s (must be none, memory, or redis)", c.Cache.Kind)
	}
	if c.Cache.Kind != CacheKindNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

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
