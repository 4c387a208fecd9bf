package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plushcare/portal/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec

	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	limitedTotal           *prometheus.CounterVec

	profilingActive prometheus.Gauge
}

// New returns a fresh registry with Go/process collectors and the portal metrics.
// HTTP labels are method, route pattern and status only, never raw paths.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{128, 512, 2048, 8192, 32768, 131072, 524288, 2097152},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-IP limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the per-IP limiter reached its visitor cap",
		}),
		limitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_ratelimit_limited_total",
			Help: "Requests rejected by an operation category's fixed window",
		}, []string{"category"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.limitedTotal,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Register adds an extra collector to the server registry
func (m *ServerMetrics) Register(c prometheus.Collector) error {
	return m.reg.Register(c)
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// IncLimited counts one fixed-window rejection. The token is deliberately not a label.
func (m *ServerMetrics) IncLimited(category string) {
	m.limitedTotal.WithLabelValues(category).Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
