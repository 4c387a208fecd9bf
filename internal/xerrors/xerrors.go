// Package xerrors attaches call-site information to errors so the logger can
// report where an error was created and where each wrap happened.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the full stack at creation
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

// wrapped carries one frame, the Wrap call site
type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) PC() uintptr   { return w.pc }

// callers returns the stack above the exported function that called it
func callers() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers, callers, the exported constructor
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

func callerPC() uintptr {
	var pcs [1]uintptr
	// runtime.Callers, callerPC, Wrap or Wrapf
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns an error with msg and the current stack
func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: callers()}
}

// Newf is New with fmt.Errorf formatting, %w is honored
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: callers()}
}

// WithStack attaches the current stack to err. Nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: callers()}
}

// EnsureTrace is WithStack unless err already carries a stack somewhere in its chain
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var s interface{ StackPCs() []uintptr }
	if errors.As(err, &s) && len(s.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: callers()}
}

// Wrap prefixes err with msg and records the caller. Nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: callerPC()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC()}
}
