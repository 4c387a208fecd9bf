package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/plushcare/portal/internal/health"
	"github.com/plushcare/portal/internal/httpmw"
	"github.com/plushcare/portal/internal/log"
	"github.com/plushcare/portal/internal/xerrors"
)

const (
	DefaultPort         = 8080
	DefaultMaxBodyBytes = 64 << 10
)

// NewHandler builds the public handler: chi routes wrapped in the middleware stack.
// main() owns the server lifecycle through Start.
func NewHandler(opts *Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5, "application/json"))

	// these need the chi route context, so they run inside the router
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())

	r.Use(httpmw.MaxBody(maxBody))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	r.NotFound(jsonError(http.StatusNotFound, "not found"))
	r.MethodNotAllowed(jsonError(http.StatusMethodNotAllowed, "method not allowed"))

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(logger, opts.OnPanic)
	}

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		traced,
		httpmw.TraceResponseHeaders(httpmw.DefaultTraceHeaders),
		opts.MetricsMW,
		httpmw.WithLogger(logger),
	)
}

func traced(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// probes are polled every few seconds
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern once routed
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}

type errorBody struct {
	Error string `json:"error"`
}

func jsonError(status int, msg string) http.HandlerFunc {
	body, _ := json.Marshal(errorBody{Error: msg})
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}

const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start serves the public API and returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen http on %s", addr)
	}

	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 10*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
