// Package logging builds the process logger. Components receive their
// *slog.Logger explicitly at construction; nothing in the project logs
// through a global or discovers its logger from the call stack.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config selects the level, an optional log directory and the process name
// baked into the file name and every record.
type Config struct {
	Level   string // debug, info, warn, error
	Dir     string // when set, JSON records also go to spinwheel-<process>.log
	Process string // e.g. "hub", "spoke-inner-1"
}

// New returns the process logger and a close function for the log file. The
// close function is always non-nil.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level := parseLevel(cfg.Level)

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	closeFn := func() error { return nil }

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := filepath.Join(cfg.Dir, fmt.Sprintf("spinwheel-%s.log", cfg.Process))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closeFn = f.Close
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = multiHandler(handlers)
	}

	logger := slog.New(h).With("proc", cfg.Process)
	return logger, closeFn, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
