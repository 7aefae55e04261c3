package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/tomasbasham/throttle"
)

// Options translates cfg into scheduler options. The scheduler logs through
// [Config.Logger] writing to stderr.
func (cfg *Config) Options() []throttle.Option {
	opts := []throttle.Option{
		throttle.WithConcurrency(limit(cfg.Concurrency)),
		throttle.WithInterval(cfg.Interval),
		throttle.WithIntervalCap(limit(cfg.IntervalCap)),
		throttle.WithTimeout(cfg.Timeout),
		throttle.WithLogger(cfg.Logger(os.Stderr)),
	}
	if cfg.AutoStart != nil {
		opts = append(opts, throttle.WithAutoStart(*cfg.AutoStart))
	}
	if cfg.IDScheme == IDSchemeUUID {
		opts = append(opts, throttle.WithIDGenerator(uuid.NewString))
	}
	return opts
}

// TaskOptions returns the per-task defaults carried by cfg.
func (cfg *Config) TaskOptions() []throttle.TaskOption {
	return []throttle.TaskOption{throttle.WithPriority(cfg.DefaultPriority)}
}

// Logger builds a structured logger writing to w. Invalid levels and formats
// fall back to info and JSON; [Validate] reports them.
func (cfg *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.Log.Level)
	format, _ := parseFormat(cfg.Log.Format)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case formatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Apply pushes the settings that can change on a running scheduler: the
// concurrency limit and whether admission is paused. The interval, interval
// cap and id scheme only take effect on a new scheduler.
func Apply[T any](s *throttle.Scheduler[T], cfg *Config) error {
	if err := s.SetConcurrency(limit(cfg.Concurrency)); err != nil {
		return err
	}
	if cfg.AutoStart == nil || *cfg.AutoStart {
		s.Start()
	} else {
		s.Pause()
	}
	return nil
}

type logFormat int

const (
	formatJSON logFormat = iota
	formatText
)

func parseLevel(levelStr string) (slog.Level, error) {
	switch levelStr {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO", "":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (logFormat, error) {
	switch formatStr {
	case "json", "JSON", "":
		return formatJSON, nil
	case "text", "TEXT":
		return formatText, nil
	default:
		return formatJSON, fmt.Errorf("unknown log format: %s", formatStr)
	}
}
