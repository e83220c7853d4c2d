// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the database that holds generated tables.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // "sqlite" or "postgres"
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ArtifactsConfig configures where generated artifacts are persisted.
type ArtifactsConfig struct {
	Driver   string `yaml:"driver"`   // "file" or "database"
	Dir      string `yaml:"dir"`      // file driver root
	Manifest string `yaml:"manifest"` // file driver manifest path (default: <dir>/manifest.txt)
	Watch    bool   `yaml:"watch"`    // mount models dropped into dir while running

	// Database driver settings. When DSN is empty the main database is shared.
	DBDriver string `yaml:"db_driver,omitempty"` // "sqlite", "postgres" or "mysql"
	DSN      string `yaml:"dsn,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	ONDEMAND_SERVER_HOST        - Server host (default: 0.0.0.0)
//	ONDEMAND_SERVER_PORT        - Server port (default: 8000)
//	ONDEMAND_DATABASE_DRIVER    - sqlite or postgres (default: sqlite)
//	ONDEMAND_DATABASE_DSN       - Database DSN (default: ondemand.db)
//	ONDEMAND_ARTIFACTS_DRIVER   - file or database (default: file)
//	ONDEMAND_ARTIFACTS_DIR      - Artifact directory (default: models)
//	ONDEMAND_ARTIFACTS_WATCH    - Watch the artifact directory (default: false)
//	ONDEMAND_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	ONDEMAND_LOG_FORMAT         - Log format: json or console (default: json)
//	ONDEMAND_METRICS_ENABLED    - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists and otherwise configures
// from the environment alone.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies ONDEMAND_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("ONDEMAND_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ONDEMAND_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ONDEMAND_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("ONDEMAND_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("ONDEMAND_SERVER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("ONDEMAND_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ONDEMAND_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ONDEMAND_DATABASE_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxOpenConns = n
		}
	}

	// Artifact configuration
	if v := os.Getenv("ONDEMAND_ARTIFACTS_DRIVER"); v != "" {
		cfg.Artifacts.Driver = v
	}
	if v := os.Getenv("ONDEMAND_ARTIFACTS_DIR"); v != "" {
		cfg.Artifacts.Dir = v
	}
	if v := os.Getenv("ONDEMAND_ARTIFACTS_MANIFEST"); v != "" {
		cfg.Artifacts.Manifest = v
	}
	if v := os.Getenv("ONDEMAND_ARTIFACTS_WATCH"); v != "" {
		cfg.Artifacts.Watch = parseBool(v)
	}
	if v := os.Getenv("ONDEMAND_ARTIFACTS_DB_DRIVER"); v != "" {
		cfg.Artifacts.DBDriver = v
	}
	if v := os.Getenv("ONDEMAND_ARTIFACTS_DSN"); v != "" {
		cfg.Artifacts.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("ONDEMAND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ONDEMAND_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("ONDEMAND_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("ONDEMAND_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "ondemand.db"
	}

	if cfg.Artifacts.Driver == "" {
		cfg.Artifacts.Driver = "file"
	}
	cfg.Artifacts.Driver = strings.ToLower(cfg.Artifacts.Driver)
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "models"
	}
	if cfg.Artifacts.Manifest == "" {
		cfg.Artifacts.Manifest = filepath.Join(cfg.Artifacts.Dir, "manifest.txt")
	}
	if cfg.Artifacts.DBDriver == "" {
		cfg.Artifacts.DBDriver = cfg.Database.Driver
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres', got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
	}

	validArtifactDrivers := map[string]bool{"file": true, "database": true}
	if !validArtifactDrivers[cfg.Artifacts.Driver] {
		return fmt.Errorf("artifacts.driver must be 'file' or 'database', got %q", cfg.Artifacts.Driver)
	}
	if cfg.Artifacts.Driver == "database" {
		validDBDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
		if !validDBDrivers[strings.ToLower(cfg.Artifacts.DBDriver)] {
			return fmt.Errorf("artifacts.db_driver must be one of: sqlite, postgres, mysql")
		}
		if cfg.Artifacts.DSN == "" && !strings.EqualFold(cfg.Artifacts.DBDriver, cfg.Database.Driver) {
			return fmt.Errorf("artifacts.dsn is required when artifacts.db_driver differs from database.driver")
		}
	}
	if cfg.Artifacts.Watch && cfg.Artifacts.Driver != "file" {
		return fmt.Errorf("artifacts.watch requires the file driver")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
