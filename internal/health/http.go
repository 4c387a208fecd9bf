package health

import "net/http"

// HealthzHandler answers 200 "ok" while p passes and 503 with the reason otherwise.
// A nil probe always passes.
func HealthzHandler(p Probe) http.HandlerFunc {
	return probeHandler(p, "ok\n")
}

// ReadyzHandler is HealthzHandler answering "ready"
func ReadyzHandler(p Probe) http.HandlerFunc {
	return probeHandler(p, "ready\n")
}

func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}
