package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/plushcare/portal/internal/httpmw"
)

// KeyFunc picks the token a request is counted against
type KeyFunc func(r *http.Request) string

// ByClientIP keys on the IP resolved by httpmw.ClientIP
func ByClientIP(r *http.Request) string {
	return httpmw.ClientIPFromContext(r.Context())
}

// Guard returns middleware that counts each request against checker and answers
// 429 once the token is over limit. Clients must not retry before Retry-After.
func Guard(checker Checker, limit int, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := checker.Check(limit, key(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				now := d.CheckedAt
				if now.IsZero() {
					now = time.Now()
				}
				retry := d.RetryAfter(now)
				w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
				writeTooMany(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GuardCategory is Guard bound to a category's own limit
func GuardCategory(b Bound, key KeyFunc) func(http.Handler) http.Handler {
	return Guard(b.FixedWindow, b.Limit, key)
}

func writeTooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	// no detail about budgets or refill timing in the body
	_, _ = w.Write([]byte(`{"error":"too many requests"}`))
}
