package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/ondemand/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 15s

database:
  driver: "postgres"
  dsn: "postgres://localhost/ondemand?sslmode=disable"
  max_open_conns: 20

artifacts:
  driver: "file"
  dir: "/var/lib/ondemand/models"
  watch: true

logging:
  level: "debug"
  format: "console"

metrics:
  enabled: true
  path: "/prom"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.Server.RequestTimeout)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %s, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Errorf("Database.MaxOpenConns = %d, want 20", cfg.Database.MaxOpenConns)
	}
	if cfg.Artifacts.Manifest != filepath.Join("/var/lib/ondemand/models", "manifest.txt") {
		t.Errorf("Artifacts.Manifest = %s", cfg.Artifacts.Manifest)
	}
	if !cfg.Artifacts.Watch {
		t.Error("Artifacts.Watch = false, want true")
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %s, want console", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics = %+v, want enabled at /prom", cfg.Metrics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("default RequestTimeout = %v, want 60s", cfg.Server.RequestTimeout)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default Database.Driver = %s, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "ondemand.db" {
		t.Errorf("default Database.DSN = %s, want ondemand.db", cfg.Database.DSN)
	}
	if cfg.Artifacts.Driver != "file" {
		t.Errorf("default Artifacts.Driver = %s, want file", cfg.Artifacts.Driver)
	}
	if cfg.Artifacts.Dir != "models" {
		t.Errorf("default Artifacts.Dir = %s, want models", cfg.Artifacts.Dir)
	}
	if cfg.Artifacts.Manifest != filepath.Join("models", "manifest.txt") {
		t.Errorf("default Artifacts.Manifest = %s", cfg.Artifacts.Manifest)
	}
	if cfg.Artifacts.DBDriver != "sqlite" {
		t.Errorf("default Artifacts.DBDriver = %s, want sqlite", cfg.Artifacts.DBDriver)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v, want info/json", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled by default")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ONDEMAND_DSN", "postgres://env-test/db")

	content := `
database:
  driver: postgres
  dsn: "${TEST_ONDEMAND_DSN}"
`

	cfg := writeAndLoad(t, content)

	if cfg.Database.DSN != "postgres://env-test/db" {
		t.Errorf("Database.DSN = %s, want postgres://env-test/db", cfg.Database.DSN)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"unknown database driver", "database:\n  driver: oracle\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"unknown artifact driver", "artifacts:\n  driver: s3\n"},
		{"unknown artifact db driver", "artifacts:\n  driver: database\n  db_driver: mssql\n"},
		{"foreign artifact db without dsn", "artifacts:\n  driver: database\n  db_driver: mysql\n"},
		{"watch with database driver", "artifacts:\n  driver: database\n  watch: true\n"},
		{"unknown log level", "logging:\n  level: verbose\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
		{"metrics path without slash", "metrics:\n  path: metrics\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := writeAndLoadErr(t, tt.content); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_DatabaseArtifactsShareMainDatabase(t *testing.T) {
	cfg := writeAndLoad(t, "artifacts:\n  driver: database\n")

	if cfg.Artifacts.DBDriver != "sqlite" {
		t.Errorf("Artifacts.DBDriver = %s, want sqlite", cfg.Artifacts.DBDriver)
	}
	if cfg.Artifacts.DSN != "" {
		t.Errorf("Artifacts.DSN = %s, want empty", cfg.Artifacts.DSN)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "server: [unclosed"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ONDEMAND_SERVER_HOST", "127.0.0.1")
	t.Setenv("ONDEMAND_SERVER_PORT", "9000")
	t.Setenv("ONDEMAND_SERVER_REQUEST_TIMEOUT", "5s")
	t.Setenv("ONDEMAND_DATABASE_DRIVER", "POSTGRES")
	t.Setenv("ONDEMAND_DATABASE_DSN", "postgres://db/ondemand")
	t.Setenv("ONDEMAND_DATABASE_MAX_OPEN_CONNS", "7")
	t.Setenv("ONDEMAND_ARTIFACTS_DIR", "/tmp/models")
	t.Setenv("ONDEMAND_ARTIFACTS_WATCH", "yes")
	t.Setenv("ONDEMAND_LOG_LEVEL", "warn")
	t.Setenv("ONDEMAND_LOG_FORMAT", "console")
	t.Setenv("ONDEMAND_METRICS_ENABLED", "1")
	t.Setenv("ONDEMAND_METRICS_PATH", "/internal/metrics")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("Addr = %s, want 127.0.0.1:9000", cfg.Server.Addr())
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %s, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 7 {
		t.Errorf("Database.MaxOpenConns = %d, want 7", cfg.Database.MaxOpenConns)
	}
	if cfg.Artifacts.Dir != "/tmp/models" || !cfg.Artifacts.Watch {
		t.Errorf("Artifacts = %+v", cfg.Artifacts)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ONDEMAND_SERVER_PORT", "9999")
	t.Setenv("ONDEMAND_LOG_LEVEL", "error")

	cfg := writeAndLoad(t, "server:\n  port: 8080\nlogging:\n  level: debug\n")

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999 (env override)", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %s, want error (env override)", cfg.Logging.Level)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("ONDEMAND_SERVER_PORT", "not-a-number")
	t.Setenv("ONDEMAND_SERVER_REQUEST_TIMEOUT", "soon")
	t.Setenv("ONDEMAND_DATABASE_MAX_OPEN_CONNS", "many")

	cfg := writeAndLoad(t, "server:\n  port: 8081\n")

	if cfg.Server.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want default 60s", cfg.Server.RequestTimeout)
	}
	if cfg.Database.MaxOpenConns != 0 {
		t.Errorf("MaxOpenConns = %d, want 0", cfg.Database.MaxOpenConns)
	}
}

func TestLoadWithFallback_FileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ondemand.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Server.Port)
	}
}

func TestLoadWithFallback_EnvOnly(t *testing.T) {
	t.Setenv("ONDEMAND_SERVER_PORT", "7100")

	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback(%q) error: %v", path, err)
		}
		if cfg.Server.Port != 7100 {
			t.Errorf("LoadWithFallback(%q) Port = %d, want 7100", path, cfg.Server.Port)
		}
	}
}

func TestParseBoolValues(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("ONDEMAND_METRICS_ENABLED", tt.value)

			cfg, err := config.LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv error: %v", err)
			}
			if cfg.Metrics.Enabled != tt.expected {
				t.Errorf("value=%q: Metrics.Enabled = %v, want %v", tt.value, cfg.Metrics.Enabled, tt.expected)
			}
		})
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
