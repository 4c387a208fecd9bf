package opshttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/plushcare/portal/internal/health"
	"github.com/plushcare/portal/internal/httpmw"
	"github.com/plushcare/portal/internal/log"
	"github.com/plushcare/portal/internal/xerrors"
)

const defaultPort = 9000

// NewHandler builds the ops mux: probes, /metrics, optional stats and pprof
func NewHandler(L log.Logger, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/-/healthy", health.HealthzHandler(opts.Health))
	mux.Handle("/-/ready", health.ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if opts.Stats != nil {
		mux.Handle("GET /-/stats", opts.Stats)
	}

	// shadow pprof with 404s so the paths never fall through to anything else
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	var h http.Handler = mux
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}
	return h
}

// Start serves NewHandler on opts.Port and returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, L log.Logger, opts Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// pprof profile/trace stream for up to 30s by default
		WriteTimeout:   40 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen ops http on %s", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr, "pprof", opts.EnablePprof)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
