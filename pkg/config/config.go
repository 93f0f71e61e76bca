// Package config loads and validates run configuration from YAML.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/comet-ml/opik-sub004/pkg/errors"
	"github.com/comet-ml/opik-sub004/pkg/optimizers"
)

// Config is the top-level run configuration.
type Config struct {
	LLM          LLMConfig                     `yaml:"llm" validate:"required"`
	Evolutionary optimizers.EvolutionaryConfig `yaml:"evolutionary"`
	TPE          optimizers.TPEConfig          `yaml:"tpe"`
	RateLimit    RateLimitConfig               `yaml:"rate_limit"`
	Telemetry    TelemetryConfig               `yaml:"telemetry"`
	LogLevel     string                        `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=anthropic"`
	Model    string `yaml:"model" validate:"required"`
	// APIKey may be empty, in which case the provider reads its usual
	// environment variable.
	APIKey string `yaml:"api_key"`
}

// RateLimitConfig bounds the process-wide LLM request budget.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// TelemetryConfig controls the local progress sink.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when a field is absent from the
// YAML document.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
		},
		Evolutionary: optimizers.DefaultEvolutionaryConfig(),
		TPE:          optimizers.DefaultTPEConfig(),
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Telemetry: TelemetryConfig{Path: "optimization.db"},
		LogLevel:  "INFO",
	}
}

// Load reads, merges over defaults, and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path})
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
			errors.Fields{"path": path})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}
	return nil
}
