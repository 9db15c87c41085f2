// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	content := `environment: "staging"
module:
  require_signed_modules: true
  trusted_signing_key: "base64key=="
  tick_interval_ms: 15000
store:
  type: "postgres"
  postgres_dsn: "postgres://localhost/agenthost"
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.True(t, cfg.Module.RequireSignedModules)
	assert.Equal(t, "base64key==", cfg.Module.TrustedSigningKey)
	assert.Equal(t, 15000, cfg.Module.TickIntervalMs)
	assert.Equal(t, "postgres", cfg.Store.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// defaults still filled where the file was silent
	assert.Equal(t, 5000, cfg.Module.CallTimeoutMs)
	assert.Equal(t, 3, cfg.Module.MaxTickFailures)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	content := `{"environment": "production", "module": {"max_tick_failures": 5}}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 5, cfg.Module.MaxTickFailures)
}

func TestLoadFromFileMissingReturnsError(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.yaml")

	cfg := &Config{Environment: "test"}
	setDefaults(cfg)
	cfg.Module.MaxModuleBytes = 999

	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 999, reloaded.Module.MaxModuleBytes)
}

func TestSetDefaultsMatchesSpec(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, 30000, cfg.Module.TickIntervalMs)
	assert.Equal(t, 5000, cfg.Module.CallTimeoutMs)
	assert.Equal(t, 512000, cfg.Module.MaxModuleBytes)
	assert.Equal(t, 1048576, cfg.Module.MaxStateBytes)
	assert.Equal(t, 160, cfg.Module.MaxMemoryPages)
	assert.Equal(t, 3, cfg.Module.MaxTickFailures)
	assert.Equal(t, "memory", cfg.Store.Type)
}
