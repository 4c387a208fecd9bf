package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/plushcare/portal/internal/httpmw"
)

// visitor is one client IP's bucket
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is set after the first denial, cleared when the visitor is evicted
	logged bool
}

// IPLimiter is a per-IP token bucket with idle eviction and a cap on tracked IPs
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int
	// atCapacity latches after OnCapacity fires so it fires once per episode
	atCapacity bool

	// OnFirstDenied fires once per visitor lifetime, used for logging
	OnFirstDenied func(ip string)
	// OnDenied fires on every denial, used for counters
	OnDenied func(ip string)
	// OnCapacity fires when a new IP is turned away because the table is full
	OnCapacity func()
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket size.
// WithRate(10, 50) allows 50 requests at once then 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle IP is kept before cleanup drops it
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

// WithMaxVisitors caps the number of tracked IPs. Unknown IPs arriving at the
// cap are denied until cleanup frees room.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnFirstDenied = fn }
}

func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnDenied = fn }
}

func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.OnCapacity = fn }
}

// New creates an IPLimiter and starts its cleanup loop, which stops with ctx
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    make(map[string]*visitor),
		perSecond:   10,
		burst:       30,
		ttl:         5 * time.Minute,
		maxVisitors: 100000,
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// allow reports whether ip may proceed, creating its bucket on first sight
func (l *IPLimiter) allow(ip string) bool {
	l.mu.Lock()
	v, exists := l.visitors[ip]
	if !exists {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			fire := !l.atCapacity
			l.atCapacity = true
			l.mu.Unlock()
			if fire && l.OnCapacity != nil {
				l.OnCapacity()
			}
			if l.OnDenied != nil {
				l.OnDenied(ip)
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	allowed := v.limiter.Allow()
	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// hooks may be slow, never call them under the lock
	l.mu.Unlock()

	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if !allowed && l.OnDenied != nil {
		l.OnDenied(ip)
	}
	return allowed
}

// Visitors returns the number of tracked IPs
func (l *IPLimiter) Visitors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// cleanup drops visitors idle for longer than ttl, checking every ttl/2
func (l *IPLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.visitors {
				if now.Sub(v.lastSeen) > l.ttl {
					delete(l.visitors, ip)
				}
			}
			if len(l.visitors) < l.maxVisitors {
				l.atCapacity = false
			}
			l.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the per-IP rate with 429
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())
		if !l.allow(ip) {
			w.Header().Set("Retry-After", "30")
			writeTooMany(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
