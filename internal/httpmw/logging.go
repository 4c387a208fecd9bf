package httpmw

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plushcare/portal/internal/log"
)

// statusWriter records the status code and body size written by a handler
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func (sw *statusWriter) code() int {
	if sw.status == 0 {
		return http.StatusOK
	}
	return sw.status
}

// WithLogger stores a request scoped logger in the context, tagged with the
// request ID and client IP resolved by the outer middleware
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			clientIP := ClientIPFromContext(ctx)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", clientIP),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", clientIP,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// quietPaths are polled by load balancers and monitoring and never access logged
var quietPaths = map[string]bool{
	"/-/healthy": true,
	"/-/ready":   true,
	"/-/ping":    true,
}

// AccessLog writes one record per request with status, size, duration and
// route, using the logger WithLogger placed in the context
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			if quietPaths[r.URL.Path] {
				return
			}
			route := RoutePattern(r)
			if route == "" {
				route = r.URL.Path
			}

			kv := []any{
				"http.response.status_code", sw.code(),
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", sw.bytes,
				"http.route", route,
			}
			L := log.FromContext(r.Context())
			if sw.code() >= http.StatusInternalServerError {
				L.Warn(r.Context(), "http request", kv...)
				return
			}
			L.Info(r.Context(), "http request", kv...)
		})
	}
}

// Scope tags the request logger and span with a handler name
func Scope(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("handler", handler))
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
