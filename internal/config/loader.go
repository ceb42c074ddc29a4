// Package config loads the drafter.yaml file and applies environment
// overrides so the CLI can run unconfigured against a local backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultBackendURL     = "http://localhost:8000"
	DefaultTimeoutSeconds = 120
	DefaultMaxIterations  = 3
	DefaultStoragePath    = ".drafter/drafter.db"
)

// Environment variable names recognized by ApplyEnv.
const (
	EnvBackendURL    = "DRAFTER_BACKEND_URL"
	EnvMaxIterations = "DRAFTER_MAX_ITERATIONS"
	EnvStoragePath   = "DRAFTER_DB_PATH"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			URL:            DefaultBackendURL,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Loop: LoopConfig{
			MaxIterations: DefaultMaxIterations,
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// LoadConfig reads and parses drafter.yaml from the given base path.
// If the file doesn't exist, returns default config. Applies defaults
// for any missing fields and environment overrides on top.
func LoadConfig(basePath string) (*Config, error) {
	configPath := filepath.Join(basePath, "drafter.yaml")

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills fields the YAML file left zero.
func applyDefaults(cfg *Config) {
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = DefaultBackendURL
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Loop.MaxIterations == 0 {
		cfg.Loop.MaxIterations = DefaultMaxIterations
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
}

// ApplyEnv loads a .env file when present and overrides config fields
// from DRAFTER_* environment variables. Real environment variables win
// over the .env file, which godotenv guarantees by never overwriting.
func ApplyEnv(cfg *Config) error {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv(EnvMaxIterations); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: EnvMaxIterations, Message: "must be an integer"}
		}
		cfg.Loop.MaxIterations = n
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	return nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if cfg.Backend.URL == "" {
		return ValidationError{Field: "backend.url", Message: "required field is empty"}
	}
	if cfg.Backend.TimeoutSeconds < 0 {
		return ValidationError{Field: "backend.timeout_seconds", Message: "must not be negative"}
	}
	if cfg.Loop.MaxIterations <= 0 {
		return ValidationError{Field: "loop.max_iterations", Message: "must be positive"}
	}
	if cfg.Storage.Path == "" {
		return ValidationError{Field: "storage.path", Message: "required field is empty"}
	}
	return nil
}
