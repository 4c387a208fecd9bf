package xerrors

import (
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
)

func frameFunc(pc uintptr) string {
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function
}

func TestNew(t *testing.T) {
	err := New("cache full")
	if err.Error() != "cache full" {
		t.Fatalf("Error() = %q", err)
	}
	var s *stacked
	if !errors.As(err, &s) || len(s.StackPCs()) == 0 {
		t.Fatal("New should capture a stack")
	}
	if fn := frameFunc(s.StackPCs()[0]); !strings.HasSuffix(fn, ".TestNew") {
		t.Fatalf("top frame = %q, want the caller", fn)
	}
}

func TestNewf_WrapsWithW(t *testing.T) {
	err := Newf("read tuning: %w", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("Newf should keep %w targets in the chain")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil must return nil")
	}

	err := Wrapf(io.EOF, "decode %s", "caches.yaml")
	if err.Error() != "decode caches.yaml: EOF" {
		t.Fatalf("Error() = %q", err)
	}
	if !errors.Is(err, io.EOF) {
		t.Fatal("Wrap should keep the cause")
	}
	w := err.(*wrapped)
	if fn := frameFunc(w.PC()); !strings.HasSuffix(fn, ".TestWrap") {
		t.Fatalf("wrap site = %q", fn)
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("nil stays nil")
	}
	err := WithStack(io.EOF)
	if !errors.Is(err, io.EOF) {
		t.Fatal("cause lost")
	}
}

func TestEnsureTrace(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Fatal("nil stays nil")
	}

	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	if _, ok := traced.(*stacked); !ok {
		t.Fatal("plain error should get a stack")
	}

	// already stacked below a wrap, must be returned unchanged
	deep := Wrap(New("root"), "outer")
	if EnsureTrace(deep) != deep {
		t.Fatal("EnsureTrace re-wrapped an error that already has a stack")
	}
}
