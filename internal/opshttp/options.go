package opshttp

import (
	"net/http"

	"github.com/plushcare/portal/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Stats is mounted read-only at /-/stats when set, e.g. cache and limiter snapshots
	Stats        http.Handler
	UseRecoverMW bool
	OnPanic      func()
}
