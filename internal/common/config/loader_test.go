package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
workers:
  save-package:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 200, cfg.Engine.LogCapacity)
	assert.Equal(t, 50, cfg.Engine.HistoryCapacity)
	assert.Equal(t, "sqpr-executions", cfg.Audit.Index)
	assert.Equal(t, ":8080", cfg.App.HTTPAddress)

	w := cfg.Workers["save-package"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("SQPR_TEST_REDIS", "redis.internal:6379")
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
storage:
  backend: redis
database:
  redis:
    address: ${SQPR_TEST_REDIS}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Database.Redis.Address)
}

func TestLoadFromFile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "storage:\n  backend: memory\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "unknown backend",
			body:    "camunda:\n  broker_address: x:1\nstorage:\n  backend: sftp\n",
			wantErr: "storage.backend",
		},
		{
			name:    "redis backend without address",
			body:    "camunda:\n  broker_address: x:1\nstorage:\n  backend: redis\n",
			wantErr: "database.redis.address",
		},
		{
			name:    "audit without elasticsearch",
			body:    "camunda:\n  broker_address: x:1\naudit:\n  enabled: true\n",
			wantErr: "elasticsearch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CAMUNDA_BROKER_ADDRESS", "")
			t.Setenv("DATABASE_REDIS_ADDRESS", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}
	w := GetWorkerConfig(cfg, "unknown")
	assert.True(t, w.Enabled)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
}
