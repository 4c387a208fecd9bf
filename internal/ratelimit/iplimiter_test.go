package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plushcare/portal/internal/httpmw"
)

// newTestIPLimiter uses a small burst and short ttl. The returned cancel stops cleanup.
func newTestIPLimiter(opts ...Option) (*IPLimiter, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	all := append([]Option{WithRate(10, 5), WithTTL(100 * time.Millisecond)}, opts...)
	return New(ctx, all...), cancel
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// serveAs sends one request through h with clientIP already resolved in context
func serveAs(h http.Handler, clientIP string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(httpmw.WithClientIP(r.Context(), clientIP))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestIPLimiter_BurstThenReject(t *testing.T) {
	l, cancel := newTestIPLimiter(WithRate(1, 5))
	defer cancel()

	for i := 0; i < 5; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request 6 should be denied")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("a different IP has its own bucket")
	}
}

func TestIPLimiter_Refill(t *testing.T) {
	l, cancel := newTestIPLimiter(WithRate(100, 1))
	defer cancel()

	l.allow("10.0.0.1")
	if l.allow("10.0.0.1") {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(20 * time.Millisecond)
	if !l.allow("10.0.0.1") {
		t.Fatal("bucket should have refilled")
	}
}

func TestIPLimiter_DenialHooks(t *testing.T) {
	var first, every atomic.Int32
	l, cancel := newTestIPLimiter(
		WithRate(1, 2),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	defer cancel()

	for i := 0; i < 7; i++ {
		l.allow("10.0.0.1")
	}
	if first.Load() != 1 {
		t.Fatalf("OnFirstDenied = %d, want 1", first.Load())
	}
	if every.Load() != 5 {
		t.Fatalf("OnDenied = %d, want 5", every.Load())
	}
}

func TestIPLimiter_CleanupEvictsIdle(t *testing.T) {
	var first atomic.Int32
	l, cancel := newTestIPLimiter(
		WithRate(1, 1),
		WithTTL(50*time.Millisecond),
		WithOnFirstDenied(func(string) { first.Add(1) }),
	)
	defer cancel()

	l.allow("10.0.0.1")
	l.allow("10.0.0.1")
	if l.Visitors() != 1 {
		t.Fatalf("Visitors = %d, want 1", l.Visitors())
	}

	time.Sleep(120 * time.Millisecond)
	if l.Visitors() != 0 {
		t.Fatal("idle visitor should have been evicted")
	}

	// a fresh visitor logs its first denial again
	l.allow("10.0.0.1")
	l.allow("10.0.0.1")
	if first.Load() != 2 {
		t.Fatalf("OnFirstDenied = %d, want 2 after eviction", first.Load())
	}
}

func TestIPLimiter_CleanupStopsOnCancel(t *testing.T) {
	l, cancel := newTestIPLimiter(WithTTL(10 * time.Millisecond))
	cancel()
	time.Sleep(30 * time.Millisecond)

	l.allow("10.0.0.2")
	time.Sleep(30 * time.Millisecond)
	if l.Visitors() != 1 {
		t.Fatal("visitor should persist once cleanup has stopped")
	}
}

func TestIPLimiter_Defaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx)

	if l.perSecond != 10 || l.burst != 30 || l.ttl != 5*time.Minute || l.maxVisitors != 100000 {
		t.Fatalf("unexpected defaults: rate=%v burst=%d ttl=%v max=%d", l.perSecond, l.burst, l.ttl, l.maxVisitors)
	}
}

func TestIPLimiter_MaxVisitors(t *testing.T) {
	var capacity atomic.Int32
	l, cancel := newTestIPLimiter(
		WithRate(100, 100),
		WithMaxVisitors(2),
		WithTTL(50*time.Millisecond),
		WithOnCapacity(func() { capacity.Add(1) }),
	)
	defer cancel()

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")

	if l.allow("10.0.0.3") || l.allow("10.0.0.4") {
		t.Fatal("new IPs must be rejected at capacity")
	}
	if !l.allow("10.0.0.1") {
		t.Fatal("known IP must still be served at capacity")
	}
	if capacity.Load() != 1 {
		t.Fatalf("OnCapacity = %d, want 1 per episode", capacity.Load())
	}

	time.Sleep(120 * time.Millisecond)
	if !l.allow("10.0.0.3") {
		t.Fatal("eviction should free capacity")
	}
}

func TestIPLimiter_MaxVisitorsZeroIsUnlimited(t *testing.T) {
	l, cancel := newTestIPLimiter(WithRate(100, 100), WithMaxVisitors(0))
	defer cancel()

	for i := 0; i < 100; i++ {
		if !l.allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)) {
			t.Fatalf("ip %d rejected with no visitor cap", i)
		}
	}
}

func TestIPLimiter_ConcurrentCapacity(t *testing.T) {
	l, cancel := newTestIPLimiter(WithRate(100, 100), WithMaxVisitors(50))
	defer cancel()

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if l.allow(fmt.Sprintf("10.0.%d.%d", n/256, n%256)) {
				allowed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if allowed.Load() != 50 || l.Visitors() != 50 {
		t.Fatalf("allowed=%d visitors=%d, want 50/50", allowed.Load(), l.Visitors())
	}
}

func TestIPLimiter_Middleware(t *testing.T) {
	l, cancel := newTestIPLimiter(WithRate(1, 2))
	defer cancel()

	var reached atomic.Int32
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		if w := serveAs(h, "203.0.113.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, w.Code)
		}
	}

	w := serveAs(h, "203.0.113.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q, want 30", w.Header().Get("Retry-After"))
	}
	if w.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if got := w.Body.String(); got != `{"error":"too many requests"}` {
		t.Errorf("body = %q", got)
	}
	if reached.Load() != 2 {
		t.Fatalf("handler reached %d times, want 2", reached.Load())
	}

	if w := serveAs(h, "203.0.113.2"); w.Code != http.StatusOK {
		t.Fatalf("other IP: got %d, want 200", w.Code)
	}
}

func TestIPLimiter_MiddlewareEmptyIPSharesBucket(t *testing.T) {
	l, cancel := newTestIPLimiter(WithRate(1, 1))
	defer cancel()
	h := l.Middleware(okHandler())

	serveAs(h, "")
	if w := serveAs(h, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}
}
