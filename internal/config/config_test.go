package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "SERVER_PORT", "LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "ENVIRONMENT",
		"MAX_HIERARCHY_DEPTH", "TELEMETRY_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 0, cfg.MaxHierarchyDepth)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tasktree.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_port = "9000"
store_driver = "postgres"
database_url = "postgres://localhost/tasks"
max_hierarchy_depth = 64
telemetry_enabled = false

[[seed]]
id = "acme"
projects = ["apollo", "gemini"]
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.ServerPort, "env wins over file")
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://localhost/tasks", cfg.DatabaseURL)
	assert.Equal(t, 64, cfg.MaxHierarchyDepth)
	assert.False(t, cfg.TelemetryEnabled)
	assert.Equal(t, []TenantSeed{{ID: "acme", Projects: []string{"apollo", "gemini"}}}, cfg.Seed)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"bad depth", map[string]string{"MAX_HIERARCHY_DEPTH": "deep"}},
		{"negative depth", map[string]string{"MAX_HIERARCHY_DEPTH": "-1"}},
		{"bad bool", map[string]string{"TELEMETRY_ENABLED": "maybe"}},
		{"missing file", map[string]string{"CONFIG_FILE": "/nonexistent/tasktree.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
