package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level and handler format of the process logger.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // text or json
	AddSource bool
}

// ParseLevel maps a config string to a slog level. Unknown values fall back
// to info and report ok=false.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New builds a logger writing to w without touching the process default.
func New(w io.Writer, cfg Config) *slog.Logger {
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// InitLogger installs a logger writing to w as the slog default and returns
// it. A nil writer means stderr.
func InitLogger(w io.Writer, cfg Config) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := New(w, cfg)
	slog.SetDefault(logger)

	if _, ok := ParseLevel(cfg.Level); !ok {
		logger.Warn("invalid log level specified, defaulting to INFO", slog.String("specified_level", cfg.Level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text", "json":
	default:
		logger.Warn("invalid log format specified, defaulting to text", slog.String("specified_format", cfg.Format))
	}
	return logger
}

// NewComponentLogger tags every record with the component name.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
