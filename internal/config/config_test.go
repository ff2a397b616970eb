package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PEDE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "artifacts", cfg.Artifacts.Dir)
	assert.Equal(t, "docs/contracts", cfg.Contracts.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.Equal(t, DefaultDatasetRelativePath, cfg.DatasetPath())
}

func TestLoadLegacyDatasetPathEnv(t *testing.T) {
	t.Setenv("PEDE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DATASET_PATH", "/tmp/pede.xlsx")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pede.xlsx", cfg.DatasetPath())
}

func TestLoadEnvOverridesLegacy(t *testing.T) {
	t.Setenv("PEDE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DATASET_PATH", "/tmp/legacy.xlsx")
	t.Setenv("PEDE_DATASET_PATH", "/tmp/preferred.xlsx")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/preferred.xlsx", cfg.DatasetPath())
}

func TestLoadLegacyLogEnv(t *testing.T) {
	t.Setenv("PEDE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_TO_FILE", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "both", cfg.Logging.Output)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := []byte("dataset:\n  path: /data/pede.xlsx\nlogging:\n  level: warn\n")
	require.NoError(t, os.WriteFile(configFile, content, 0o644))

	t.Setenv("PEDE_CONFIG_FILE", configFile)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/pede.xlsx", cfg.Dataset.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestContractPath(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	assert.Equal(t, filepath.Join("docs/contracts", "data_contract_2023.json"), cfg.ContractPath(2023))
}

func TestValidateRejectsBadOutput(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Logging.Output = "syslog"
	assert.Error(t, cfg.validate())
}
