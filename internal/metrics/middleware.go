package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.n += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// unmatchedRoute labels requests no route claimed, keeping raw paths out of labels
const unmatchedRoute = "unmatched"

// Middleware records inflight, total, errors, duration and size per route.
// It must wrap the chi router: it seeds the route context chi fills in.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			rctx = chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		statusCode := sw.status
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		method := r.Method
		route := rctx.RoutePattern()
		if route == "" {
			route = unmatchedRoute
		}

		m.reqTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
		if statusCode >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(method, route).Inc()
		}

		lat := time.Since(start).Seconds()
		obs := m.reqDur.WithLabelValues(method, route)
		if ex := traceExemplar(r.Context()); ex != nil {
			if eo, ok := obs.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(lat, ex)
			} else {
				obs.Observe(lat)
			}
		} else {
			obs.Observe(lat)
		}

		m.respBytes.WithLabelValues(method, route).Observe(float64(sw.n))
	})
}

// if a sampled trace is present attach its trace_id as an exemplar
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
