// Package config loads scheduler settings from YAML files and environment
// variables, and reloads them while a scheduler runs.
//
// A configuration file looks like this:
//
//	concurrency: 4
//	interval: 1s
//	interval_cap: 10
//	autostart: true
//	timeout: 30s
//	default_priority: high
//	id_scheme: uuid
//	log:
//	  level: debug
//	  format: text
//
// A zero concurrency or interval cap means unbounded.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomasbasham/throttle"
)

// Id schemes for tasks added without an explicit id.
const (
	IDSchemeSequential = "sequential"
	IDSchemeUUID       = "uuid"
)

// Config holds the settings of a single scheduler.
type Config struct {
	Concurrency     int               `yaml:"concurrency"`
	Interval        time.Duration     `yaml:"interval"`
	IntervalCap     int               `yaml:"interval_cap"`
	AutoStart       *bool             `yaml:"autostart"`
	Timeout         time.Duration     `yaml:"timeout"`
	DefaultPriority throttle.Priority `yaml:"default_priority"`
	IDScheme        string            `yaml:"id_scheme"`
	Log             LogConfig         `yaml:"log"`
}

// LogConfig configures the logger built by [Config.Logger].
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given: unbounded
// concurrency and rate, a 1ms interval and sequential ids.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Millisecond
	}
	if cfg.AutoStart == nil {
		start := true
		cfg.AutoStart = &start
	}
	if cfg.IDScheme == "" {
		cfg.IDScheme = IDSchemeSequential
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate reports every invalid field of cfg.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be 0 (unbounded) or positive, got %d", cfg.Concurrency))
	}
	if cfg.IntervalCap < 0 {
		errs = append(errs, fmt.Errorf("interval_cap must be 0 (unbounded) or positive, got %d", cfg.IntervalCap))
	}
	if cfg.Interval < time.Millisecond {
		errs = append(errs, fmt.Errorf("interval must be at least 1ms, got %s", cfg.Interval))
	}
	if cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout))
	}

	switch cfg.IDScheme {
	case IDSchemeSequential, IDSchemeUUID:
	default:
		errs = append(errs, fmt.Errorf("unknown id_scheme: %q", cfg.IDScheme))
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseFormat(cfg.Log.Format); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func limit(n int) int {
	if n == 0 {
		return throttle.Unbounded
	}
	return n
}
