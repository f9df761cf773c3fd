package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// Config represents application configuration
type Config struct {
	Environment string           `yaml:"environment"`
	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	Timer       TimerConfig      `yaml:"timer"`
	Compliance  ComplianceConfig `yaml:"compliance"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver         string        `yaml:"driver"` // postgres, sqlite, memory
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// RedisConfig represents the Redis start guard configuration
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// TimerConfig represents timer controller configuration
type TimerConfig struct {
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	PromptTimeout    time.Duration `yaml:"prompt_timeout"`
}

// ComplianceConfig represents deadline classification configuration
type ComplianceConfig struct {
	DueSoonDays int `yaml:"due_soon_days"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required for the postgres and sqlite drivers")
	ErrUnknownDatabaseDriver = errors.New("DB_DRIVER must be one of postgres, sqlite, memory")
	ErrMissingRedisURL       = errors.New("REDIS_URL is required when the Redis start guard is enabled")
	ErrInvalidReminder       = errors.New("TIMER_REMINDER_INTERVAL must be positive")
	ErrInvalidDueSoonDays    = errors.New("COMPLIANCE_DUE_SOON_DAYS must be positive")
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Driver:         "postgres",
			MaxConnections: 10,
			ConnectTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			URL:     "redis://localhost:6379/0",
			LockTTL: 10 * time.Second,
		},
		Timer: TimerConfig{
			ReminderInterval: 30 * time.Minute,
			OperationTimeout: 10 * time.Second,
			PromptTimeout:    5 * time.Minute,
		},
		Compliance: ComplianceConfig{
			DueSoonDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by BACKOFFICE_CONFIG_FILE, and environment variables (a .env file is
// loaded first if present). Environment variables win.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("BACKOFFICE_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnvOrDefault("ENV", c.Environment)

	c.Database.Driver = strings.ToLower(getEnvOrDefault("DB_DRIVER", c.Database.Driver))
	c.Database.URL = getEnvOrDefault("DATABASE_URL", c.Database.URL)
	c.Database.MaxConnections = getEnvOrDefaultInt("DB_MAX_CONNECTIONS", c.Database.MaxConnections)
	c.Database.ConnectTimeout = getEnvOrDefaultDuration("DB_CONNECT_TIMEOUT", c.Database.ConnectTimeout)

	c.Redis.Enabled = getEnvOrDefaultBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.URL = getEnvOrDefault("REDIS_URL", c.Redis.URL)
	c.Redis.LockTTL = getEnvOrDefaultDuration("REDIS_LOCK_TTL", c.Redis.LockTTL)

	c.Timer.ReminderInterval = getEnvOrDefaultDuration("TIMER_REMINDER_INTERVAL", c.Timer.ReminderInterval)
	c.Timer.OperationTimeout = getEnvOrDefaultDuration("TIMER_OPERATION_TIMEOUT", c.Timer.OperationTimeout)
	c.Timer.PromptTimeout = getEnvOrDefaultDuration("TIMER_PROMPT_TIMEOUT", c.Timer.PromptTimeout)

	c.Compliance.DueSoonDays = getEnvOrDefaultInt("COMPLIANCE_DUE_SOON_DAYS", c.Compliance.DueSoonDays)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.URL == "" {
			return ErrMissingDatabaseURL
		}
	case "memory":
	default:
		return ErrUnknownDatabaseDriver
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return ErrMissingRedisURL
	}

	if c.Timer.ReminderInterval <= 0 {
		return ErrInvalidReminder
	}

	if c.Compliance.DueSoonDays <= 0 {
		return ErrInvalidDueSoonDays
	}

	return nil
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// interpret as seconds if numeric, else parse like Go duration
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}
