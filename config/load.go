package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomasbasham/throttle"
)

// Load loads configuration from a YAML file at the specified path. It applies
// default values and validates the result. Environment variables are not
// consulted; use [LoadWithEnvOverrides] for that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from a YAML file and applies
// THROTTLE_* environment variable overrides, which always take precedence
// over the file.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// FromEnv returns the default configuration with THROTTLE_* overrides
// applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides ignores values that do not parse.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("THROTTLE_CONCURRENCY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Concurrency = i
		}
	}
	if val := os.Getenv("THROTTLE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Interval = d
		}
	}
	if val := os.Getenv("THROTTLE_INTERVAL_CAP"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.IntervalCap = i
		}
	}
	if val := os.Getenv("THROTTLE_AUTOSTART"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.AutoStart = &b
		}
	}
	if val := os.Getenv("THROTTLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Timeout = d
		}
	}
	if val := os.Getenv("THROTTLE_DEFAULT_PRIORITY"); val != "" {
		if p, err := throttle.ParsePriority(val); err == nil {
			cfg.DefaultPriority = p
		}
	}
	if val := os.Getenv("THROTTLE_ID_SCHEME"); val != "" {
		cfg.IDScheme = val
	}
	if val := os.Getenv("THROTTLE_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("THROTTLE_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}
