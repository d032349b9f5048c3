package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort string `toml:"server_port"`
	LogLevel   string `toml:"log_level"`

	// Storage settings
	StoreDriver string       `toml:"store_driver"`
	DatabaseURL string       `toml:"database_url"`
	Seed        []TenantSeed `toml:"seed"`

	// MaxHierarchyDepth bounds ancestor chains walked during reparenting. Zero means unbounded.
	MaxHierarchyDepth int `toml:"max_hierarchy_depth"`

	// OpenTelemetry settings
	TelemetryEnabled bool   `toml:"telemetry_enabled"`
	OTLPEndpoint     string `toml:"otlp_endpoint"`
	ServiceName      string `toml:"service_name"`
	Environment      string `toml:"environment"`
}

// TenantSeed registers a tenant and its projects at startup.
type TenantSeed struct {
	ID       string   `toml:"id"`
	Projects []string `toml:"projects"`
}

// Load returns configuration from environment variables with sensible
// defaults. When CONFIG_FILE names a TOML file, its values are applied on
// top of the defaults and environment variables that are set win over the
// file.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	var err error
	if cfg.MaxHierarchyDepth, err = getEnvInt("MAX_HIERARCHY_DEPTH", cfg.MaxHierarchyDepth); err != nil {
		return nil, err
	}
	if cfg.TelemetryEnabled, err = getEnvBool("TELEMETRY_ENABLED", cfg.TelemetryEnabled); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.MaxHierarchyDepth < 0 {
		return errors.New("config: max hierarchy depth must not be negative")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		ServerPort:       "8080",
		LogLevel:         "info",
		StoreDriver:      DriverMemory,
		TelemetryEnabled: true,
		OTLPEndpoint:     "localhost:4317",
		ServiceName:      "tasktree",
		Environment:      "development",
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
