package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/plushcare/portal/internal/xerrors"
)

func newTestLogger(t *testing.T, opts Options) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Writer = &buf
	opts.JSON = true
	if opts.App == "" {
		opts.App = "portal-test"
	}
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, &buf
}

// lastRecord decodes the final JSON line written to buf
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogger_BaseAttrs(t *testing.T) {
	l, buf := newTestLogger(t, Options{Version: "1.2.3", Commit: "abc"})
	l.Info(context.Background(), "hello", "k", "v")

	rec := lastRecord(t, buf)
	if rec["msg"] != "hello" || rec["app"] != "portal-test" || rec["version"] != "1.2.3" || rec["commit"] != "abc" {
		t.Fatalf("record = %v", rec)
	}
	if rec["k"] != "v" {
		t.Fatalf("kv not attached: %v", rec)
	}
	src, _ := rec["source"].(map[string]any)
	if file, _ := src["file"].(string); !strings.HasSuffix(file, "log_test.go") {
		t.Fatalf("source should point at the caller, got %v", rec["source"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newTestLogger(t, Options{Level: slog.LevelWarn})
	ctx := context.Background()

	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	if buf.Len() != 0 {
		t.Fatalf("below-level records written: %s", buf)
	}
	l.Warn(ctx, "w")
	if lastRecord(t, buf)["msg"] != "w" {
		t.Fatal("warn not written")
	}
}

func TestLogger_With(t *testing.T) {
	l, buf := newTestLogger(t, Options{})
	parent := l.With("component", "cache")
	child := parent.With("cache", "customer", 42, "dropped", "odd")

	child.Info(context.Background(), "child")
	rec := lastRecord(t, buf)
	if rec["component"] != "cache" || rec["cache"] != "customer" {
		t.Fatalf("child record = %v", rec)
	}
	if _, ok := rec["odd"]; ok {
		t.Fatal("trailing odd value must be dropped")
	}

	parent.Info(context.Background(), "parent")
	if _, ok := lastRecord(t, buf)["cache"]; ok {
		t.Fatal("child attrs leaked into parent")
	}
}

func TestLogger_Error(t *testing.T) {
	l, buf := newTestLogger(t, Options{IncludeErrorLinks: true})

	root := errors.New("connection refused")
	err := xerrors.Wrap(fmt.Errorf("dial store: %w", root), "load customer")
	l.Error(context.Background(), err, "cache load failed", "cache", "customer")

	rec := lastRecord(t, buf)
	if rec["level"] != "ERROR" || rec["cache"] != "customer" {
		t.Fatalf("record = %v", rec)
	}
	if rec["err"] != "load customer: dial store: connection refused" {
		t.Fatalf("err = %v", rec["err"])
	}
	if rec["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", rec["cause_type"])
	}
	chain, _ := rec["error_chain"].([]any)
	if len(chain) != 3 {
		t.Fatalf("error_chain = %v", rec["error_chain"])
	}
	links, _ := rec["error_links"].([]any)
	if len(links) == 0 {
		t.Fatal("error_links missing")
	}
	if first, _ := links[0].(map[string]any); first["func"] == nil {
		t.Fatalf("outer link should carry its wrap site: %v", first)
	}
	if s, _ := rec["stack"].(string); s == "" {
		t.Fatal("error records carry a stack")
	}
}

func TestLogger_ErrorNil(t *testing.T) {
	l, buf := newTestLogger(t, Options{})
	l.Error(context.Background(), nil, "no error")

	rec := lastRecord(t, buf)
	if _, ok := rec["err"]; ok {
		t.Fatal("nil error should not add err")
	}
}

func TestLogger_StacktraceLevel(t *testing.T) {
	l, buf := newTestLogger(t, Options{StacktraceLevel: slog.LevelWarn})
	l.Info(context.Background(), "info")
	if _, ok := lastRecord(t, buf)["stack"]; ok {
		t.Fatal("no stack below StacktraceLevel")
	}
	l.Warn(context.Background(), "warn")
	if _, ok := lastRecord(t, buf)["stack"]; !ok {
		t.Fatal("stack expected at StacktraceLevel")
	}
}

func TestLogger_TraceIDs(t *testing.T) {
	l, buf := newTestLogger(t, Options{})

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	rec := lastRecord(t, buf)
	if rec["trace_id"] != tid.String() || rec["span_id"] != sid.String() {
		t.Fatalf("record = %v", rec)
	}

	l.Info(context.Background(), "untraced")
	if _, ok := lastRecord(t, buf)["trace_id"]; ok {
		t.Fatal("trace_id without a span")
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{App: "portal", Writer: &buf})
	l.Info(context.Background(), "plain", "k", "v")
	if !strings.Contains(buf.String(), "msg=plain") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("text output = %q", buf.String())
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()).(nopLogger); !ok {
		t.Fatal("empty context should give Nop")
	}
	l, _ := newTestLogger(t, Options{})
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("logger not round-tripped through context")
	}
}

func TestNop(t *testing.T) {
	n := Nop()
	n.With("a", 1).Error(context.Background(), errors.New("x"), "ignored")
	if err := n.Sync(); err != nil {
		t.Fatal(err)
	}
}

func TestErrorChain_Join(t *testing.T) {
	err := errors.Join(errors.New("a"), errors.New("b"))
	got := errorChain(err)
	if len(got) != 3 || got[1] != "a" || got[2] != "b" {
		t.Fatalf("errorChain = %v", got)
	}
}

func TestChainLinks_Max(t *testing.T) {
	err := xerrors.Wrap(xerrors.Wrap(xerrors.New("root"), "mid"), "top")
	if got := chainLinks(err, 2); len(got) != 2 {
		t.Fatalf("got %d links, want 2", len(got))
	}
	if got := chainLinks(err, 0); len(got) != 3 {
		t.Fatalf("got %d links, want 3 with no max", len(got))
	}
}

func TestClassifyTypes(t *testing.T) {
	type codeErr struct{ error }
	err := xerrors.Wrap(fmt.Errorf("ctx: %w", &codeErr{errors.New("x")}), "outer")
	surface, root := classifyTypes(err)
	if surface != "*log.codeErr" {
		t.Fatalf("surface = %q", surface)
	}
	if root != "*log.codeErr" {
		t.Fatalf("root = %q", root)
	}
}
