// Package logging builds the slog loggers used across orgtrends.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and optional rotating file output.
type Config struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`
	Format string `json:"format" mapstructure:"format" yaml:"format"`
	// File tees logs into a rotating file when set.
	File       string `json:"file" mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `json:"maxSizeMb" mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"maxBackups" mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"maxAgeDays" mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DefaultConfig logs text at info level to stderr only.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28}
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// New builds a logger writing to stderr and, if cfg.File is set, a lumberjack file.
// The returned close function releases the file.
func New(cfg Config, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	out := stderr
	closeFn := func() error { return nil }
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
			}
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(stderr, file)
		closeFn = file.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}
	return slog.New(handler), closeFn, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
