package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// implemented by xerrors wrap and stack types
type hasPC interface{ PC() uintptr }
type hasStack interface{ StackPCs() []uintptr }

func currentStack(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// internalFrame reports frames from the runtime, slog or this package and xerrors
func internalFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "log/slog.") ||
		strings.Contains(fn, "/internal/log.") ||
		strings.Contains(fn, "/internal/xerrors.")
}

// renderStack formats frames as "func\n\tfile:line", starting at the first
// caller outside the logging machinery and stopping at the runtime
func renderStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	started := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !started && !internalFrame(fr.Function) {
			started = true
		}
		if started {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// errorChain lists distinct messages from err down to its root, then the
// members of a top-level errors.Join
func errorChain(err error) []string {
	var out []string
	var prev string
	add := func(msg string) {
		if msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range m.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// chainLinks locates each wrap in the chain. The outermost link is always
// present, deeper links only when they carry a position.
func chainLinks(err error, max int) []map[string]any {
	var links []map[string]any
	for depth, e := 0, err; e != nil && (max <= 0 || depth < max); depth, e = depth+1, errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		fn, file, line, ok := errorPosition(e)
		if ok {
			link["func"], link["file"], link["line"] = fn, file, line
		}
		if depth == 0 || ok {
			links = append(links, link)
		}
	}
	return links
}

func errorPosition(e error) (fn, file string, line int, ok bool) {
	switch v := e.(type) {
	case hasPC:
		if v.PC() == 0 {
			return "", "", 0, false
		}
		fr, _ := runtime.CallersFrames([]uintptr{v.PC()}).Next()
		return fr.Function, fr.File, fr.Line, true
	case hasStack:
		frames := runtime.CallersFrames(v.StackPCs())
		for {
			fr, more := frames.Next()
			if fr.Function != "" && !internalFrame(fr.Function) {
				return fr.Function, fr.File, fr.Line, true
			}
			if !more {
				return "", "", 0, false
			}
		}
	}
	return "", "", 0, false
}

// classifyTypes returns the first concrete error type under any wrappers and
// the type at the bottom of the chain
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface != "" {
			continue
		}
		t := reflect.TypeOf(e)
		u := t
		for u.Kind() == reflect.Pointer {
			u = u.Elem()
		}
		if strings.Contains(u.PkgPath(), "/internal/xerrors") {
			continue
		}
		if u.PkgPath() == "fmt" && u.Name() == "wrapError" {
			continue
		}
		surface = t.String()
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}
