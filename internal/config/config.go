// Package config loads pipeline configuration from environment variables
// with an optional YAML overlay. Environment always wins over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// DefaultDatasetRelativePath is the project-relative fallback used when no
// dataset path is configured.
const DefaultDatasetRelativePath = "dataset/DATATHON/BASE DE DADOS PEDE 2024 - DATATHON.xlsx"

// Config is the complete pipeline configuration.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Contracts ContractsConfig `yaml:"contracts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatasetConfig locates the PEDE workbook.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// ArtifactsConfig controls where aggregate report artifacts are written.
// Defaults are applied after the YAML overlay so file values are not masked.
type ArtifactsConfig struct {
	Dir           string `yaml:"dir"`
	WriteMarkdown bool   `yaml:"write_markdown" split_words:"true"`
}

// ContractsConfig locates exported per-year data contracts.
type ContractsConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures the slog setup.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path" split_words:"true"`
}

// Load reads configuration from the environment (prefix PEDE), overlaying a
// config.yaml when present next to the working directory.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("PEDE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	cfg.applyLegacyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DatasetPath resolves the workbook location: configured path first, then
// the project-relative fallback.
func (c *Config) DatasetPath() string {
	if c.Dataset.Path != "" {
		return c.Dataset.Path
	}
	return DefaultDatasetRelativePath
}

// ContractPath returns the exported contract file for one year.
func (c *Config) ContractPath(year int) string {
	return filepath.Join(c.Contracts.Dir, fmt.Sprintf("data_contract_%d.json", year))
}

// applyLegacyEnv honors the short-form variables the original tooling used:
// DATASET_PATH, LOG_LEVEL and LOG_TO_FILE.
func (c *Config) applyLegacyEnv() {
	if c.Dataset.Path == "" {
		if legacy := os.Getenv("DATASET_PATH"); legacy != "" {
			c.Dataset.Path = legacy
		}
	}
	if legacy := os.Getenv("LOG_LEVEL"); legacy != "" && os.Getenv("PEDE_LOGGING_LEVEL") == "" {
		c.Logging.Level = legacy
	}
	if legacy := os.Getenv("LOG_TO_FILE"); legacy != "" && os.Getenv("PEDE_LOGGING_OUTPUT") == "" {
		switch legacy {
		case "1", "true", "yes", "on":
			c.Logging.Output = "both"
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
	if c.Contracts.Dir == "" {
		c.Contracts.Dir = "docs/contracts"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
}

func (c *Config) validate() error {
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q (expected console, file or both)", c.Logging.Output)
	}
	return nil
}

func getConfigFilePath() string {
	if path := os.Getenv("PEDE_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config into env config; env takes precedence.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Dataset.Path == "" {
		envConfig.Dataset.Path = fileConfig.Dataset.Path
	}
	if envConfig.Artifacts.Dir == "" {
		envConfig.Artifacts.Dir = fileConfig.Artifacts.Dir
	}
	if !envConfig.Artifacts.WriteMarkdown {
		envConfig.Artifacts.WriteMarkdown = fileConfig.Artifacts.WriteMarkdown
	}
	if envConfig.Contracts.Dir == "" {
		envConfig.Contracts.Dir = fileConfig.Contracts.Dir
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Logging.Output == "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if envConfig.Logging.FilePath == "" {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}
	return envConfig
}
