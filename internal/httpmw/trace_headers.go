package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceHeaderNames names the response headers that carry a request's trace
// identity. An empty name skips that header.
type TraceHeaderNames struct {
	Trace string
	Span  string
	// Response carries the W3C traceresponse form, version-traceid-spanid-flags
	Response string
}

// DefaultTraceHeaders are the names support tooling looks for
var DefaultTraceHeaders = TraceHeaderNames{
	Trace:    "X-Trace-Id",
	Span:     "X-Span-Id",
	Response: "traceresponse",
}

// TraceResponseHeaders stamps each response with the request's trace identity
// so a customer report can be matched to its trace. Unsampled traces are not
// stamped since the backend never received them.
func TraceResponseHeaders(names TraceHeaderNames) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stampTrace(w.Header(), names, trace.SpanContextFromContext(r.Context()))
			next.ServeHTTP(w, r)
		})
	}
}

func stampTrace(h http.Header, names TraceHeaderNames, sc trace.SpanContext) {
	if !sc.IsValid() || !sc.IsSampled() {
		return
	}
	tid, sid := sc.TraceID().String(), sc.SpanID().String()
	if names.Trace != "" {
		h.Set(names.Trace, tid)
	}
	if names.Span != "" {
		h.Set(names.Span, sid)
	}
	if names.Response != "" {
		h.Set(names.Response, "00-"+tid+"-"+sid+"-"+sc.TraceFlags().String())
	}
}
