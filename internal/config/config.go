// Package config loads engine configuration from file, environment and
// defaults through viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the complete engine configuration.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Reference   ReferenceConfig `mapstructure:"reference"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Provider    ProviderConfig  `mapstructure:"provider"`
	Resolver    ResolverConfig  `mapstructure:"resolver"`
	Analyzer    AnalyzerConfig  `mapstructure:"analyzer"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ReferenceConfig selects and locates the reference data backend.
type ReferenceConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig sizes the analysis cache and optionally enables the redis
// tier.
type CacheConfig struct {
	Capacity     int           `mapstructure:"capacity"`
	TTL          time.Duration `mapstructure:"ttl"`
	RedisEnabled bool          `mapstructure:"redis_enabled"`
	RedisURL     string        `mapstructure:"redis_url"`
	RedisTTL     time.Duration `mapstructure:"redis_ttl"`
}

// ProviderConfig holds the external normalization service settings.
type ProviderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// ResolverConfig tunes the term resolution pipeline.
type ResolverConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	ProviderTimeout     time.Duration `mapstructure:"provider_timeout"`
}

// AnalyzerConfig tunes the composed claim analysis.
type AnalyzerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads and validates the configuration.
type Manager struct {
	config *Config
}

// NewManager loads configuration from config.yaml (when present), the
// KLAIMEDIS_* environment and built-in defaults.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/klaimedis/")

	viper.SetEnvPrefix("KLAIMEDIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("reference.backend", "sqlite")
	viper.SetDefault("reference.sqlite_path", "./data/reference.db")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "klaimedis")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.min_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "./migrations")

	viper.SetDefault("cache.capacity", 512)
	viper.SetDefault("cache.ttl", "15m")
	viper.SetDefault("cache.redis_enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.redis_ttl", "15m")

	viper.SetDefault("provider.enabled", false)
	viper.SetDefault("provider.base_url", "http://localhost:9090")
	viper.SetDefault("provider.timeout", "10s")
	viper.SetDefault("provider.rate_limit", 10)

	viper.SetDefault("resolver.similarity_threshold", 0.84)
	viper.SetDefault("resolver.provider_timeout", "10s")

	viper.SetDefault("analyzer.concurrency", 8)
	viper.SetDefault("analyzer.batch_timeout", "15s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Validate checks the loaded configuration for inconsistencies.
func (m *Manager) Validate() error {
	config := m.config

	switch config.Reference.Backend {
	case "sqlite":
		if config.Reference.SQLitePath == "" {
			return fmt.Errorf("reference sqlite path is required")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid reference backend: %s", config.Reference.Backend)
	}

	if config.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive: %d", config.Cache.Capacity)
	}
	if config.Cache.RedisEnabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the redis cache tier is enabled")
	}

	if config.Provider.Enabled && config.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL is required when the provider is enabled")
	}

	if config.Resolver.SimilarityThreshold <= 0 || config.Resolver.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold out of range: %f", config.Resolver.SimilarityThreshold)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a postgres connection URL.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// IsProduction returns true when running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// NewLogger builds the process logger from the logging configuration.
func NewLogger(cfg LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	return logger
}
