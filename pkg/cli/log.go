package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is text or json. Empty means text.
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`

	// File sends logs to a size-rotated file instead of the console.
	File string `yaml:"file"`

	// MaxSizeMB is the rotation size. Defaults to 50.
	MaxSizeMB int `yaml:"max_size_mb" validate:"gte=0"`

	// MaxBackups is the number of rotated files kept. Defaults to 5.
	MaxBackups int `yaml:"max_backups" validate:"gte=0"`
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// NewLogger builds a slog.Logger writing to console, or to opts.File when
// set. The returned Closer releases the log file.
func NewLogger(opts LogOptions, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			Compress:   true,
		}
		w, closer = lj, lj
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch opts.Format {
	case "", "text":
		h = slog.NewTextHandler(w, hopts)
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
