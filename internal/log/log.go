package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the structured logger passed through the portal.
// Key/value pairs follow the slog convention of alternating string keys and values.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App     string
	Version string
	Commit  string

	Level slog.Level
	// StacktraceLevel is the lowest level that gets a "stack" attribute, error when nil
	StacktraceLevel slog.Leveler
	JSON            bool

	// IncludeErrorLinks adds an error_links attribute locating each wrap site
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// Writer defaults to stdout
	Writer io.Writer
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

// ParseLevel accepts debug, info, warn (or warning) and error, case insensitive
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (valid levels are debug|info|warn|error)", s)
	}
}
