package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plushcare/portal/internal/health"
	"github.com/plushcare/portal/internal/httpmw"
	"github.com/plushcare/portal/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes mounts the application routes on the router
	APIRoutes func(chi.Router)

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	// RateLimitMW runs after client IP resolution, before routing
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// MaxBodyBytes caps request bodies, DefaultMaxBodyBytes when 0
	MaxBodyBytes int64
}
