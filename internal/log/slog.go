package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

type slogLogger struct {
	h     slog.Handler
	attrs []slog.Attr

	includeErrorLinks bool
	maxErrorLinks     int
}

func newSlog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	stackLevel := slog.LevelError
	if opts.StacktraceLevel != nil {
		stackLevel = opts.StacktraceLevel.Level()
	}
	if opts.MaxErrorLinks <= 0 {
		opts.MaxErrorLinks = 8
	}

	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: true}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}
	h = stackHandler{next: traceHandler{next: h}, level: stackLevel}

	base := []slog.Attr{slog.String("app", opts.App)}
	if opts.Version != "" {
		base = append(base, slog.String("version", opts.Version))
	}
	if opts.Commit != "" {
		base = append(base, slog.String("commit", opts.Commit))
	}

	return &slogLogger{
		h:                 h,
		attrs:             base,
		includeErrorLinks: opts.IncludeErrorLinks,
		maxErrorLinks:     opts.MaxErrorLinks,
	}, nil
}

// With returns a child logger. Attrs are copied so parents and children can be
// used from different goroutines.
func (s *slogLogger) With(kv ...any) Logger {
	next := make([]slog.Attr, len(s.attrs), len(s.attrs)+len(kv)/2)
	copy(next, s.attrs)
	next = appendKV(next, kv)

	child := *s
	child.attrs = next
	return &child
}

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelDebug, msg, kv)
}

func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelInfo, msg, kv)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelWarn, msg, kv)
}

// Error logs at error level with err and its chain attached
func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		surface, root := classifyTypes(err)
		kv = append(kv, "err", err, "error_type", surface, "cause_type", root)
		if chain := errorChain(err); len(chain) > 1 {
			kv = append(kv, "error_chain", chain)
		}
		if s.includeErrorLinks {
			kv = append(kv, "error_links", chainLinks(err, s.maxErrorLinks))
		}
	}
	s.log(ctx, slog.LevelError, msg, kv)
}

func (s *slogLogger) Sync() error { return nil }

func (s *slogLogger) log(ctx context.Context, lvl slog.Level, msg string, kv []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	// skip runtime.Callers, log and the exported level method
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	r.AddAttrs(s.attrs...)
	r.AddAttrs(appendKV(nil, kv)...)
	_ = s.h.Handle(ctx, r)
}

// appendKV converts alternating key/value pairs, dropping non-string keys and a trailing odd value
func appendKV(dst []slog.Attr, kv []any) []slog.Attr {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			dst = append(dst, slog.Any(k, kv[i+1]))
		}
	}
	return dst
}
