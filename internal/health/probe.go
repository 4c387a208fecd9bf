package health

import (
	"context"
	"errors"
	"sync"
)

var errNoProbes = errors.New("no healthy probes")

// Probe is evaluated per request. A nil error means healthy, a non-nil error
// carries the reason served to the caller.
type Probe interface{ Check(context.Context) error }

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := errors.New(reason)
	return func(context.Context) error { return err }
}

// All passes when every probe passes and returns the first failure. Nil probes are skipped.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one probe passes, otherwise returns the last failure
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		last := errNoProbes
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		return last
	}
}

// ShutdownGate fails its probe once Set is called. The zero value is open.
type ShutdownGate struct {
	mu     sync.RWMutex
	closed bool
	reason string
}

// Set closes the gate with reason, "draining" when empty
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	g.closed, g.reason = true, reason
	g.mu.Unlock()
}

func (g *ShutdownGate) Clear() {
	g.mu.Lock()
	g.closed, g.reason = false, ""
	g.mu.Unlock()
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		if !g.closed {
			return nil
		}
		return errors.New(g.reason)
	}
}
