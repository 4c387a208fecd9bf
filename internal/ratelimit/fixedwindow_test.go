package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestWindow(t *testing.T, opts ...WindowOption) (*FixedWindow, *clock.Mock) {
	t.Helper()
	mc := clock.NewMock()
	all := append([]WindowOption{WithWindowClock(mc)}, opts...)
	return NewFixedWindow("test", all...), mc
}

func TestFixedWindow_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestWindow(t)

	for i := 1; i <= 5; i++ {
		if !l.Allow(5, "ip1") {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	if l.Allow(5, "ip1") {
		t.Fatal("hit 6 should be rejected")
	}
	if !l.Allow(5, "ip2") {
		t.Fatal("ip2 has its own count")
	}
}

func TestFixedWindow_LimitOne(t *testing.T) {
	l, _ := newTestWindow(t)

	if !l.Allow(1, "tok") {
		t.Fatal("first hit should be allowed")
	}
	if l.Allow(1, "tok") {
		t.Fatal("second hit should be rejected")
	}
}

func TestFixedWindow_NonPositiveLimitRejects(t *testing.T) {
	l, _ := newTestWindow(t)

	for _, limit := range []int{0, -1} {
		if l.Allow(limit, fmt.Sprintf("tok%d", limit)) {
			t.Fatalf("limit %d should reject", limit)
		}
	}
}

func TestFixedWindow_ResetsAfterWindow(t *testing.T) {
	l, mc := newTestWindow(t, WithWindow(time.Minute))

	for i := 0; i < 3; i++ {
		l.Allow(3, "tok")
	}
	if l.Allow(3, "tok") {
		t.Fatal("should be over limit")
	}

	mc.Add(59 * time.Second)
	if l.Allow(3, "tok") {
		t.Fatal("window has not elapsed yet")
	}

	mc.Add(time.Second)
	d := l.Check(3, "tok")
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("new window: allowed=%v count=%d, want true/1", d.Allowed, d.Count)
	}
}

func TestFixedWindow_HitsDoNotExtendWindow(t *testing.T) {
	l, mc := newTestWindow(t, WithWindow(time.Minute))

	l.Allow(2, "tok")
	for i := 0; i < 5; i++ {
		mc.Add(10 * time.Second)
		l.Allow(2, "tok")
	}
	// 50s after the first hit, the 10s step lands at 60s
	mc.Add(10 * time.Second)
	if d := l.Check(2, "tok"); d.Count != 1 {
		t.Fatalf("count = %d, want 1 once the first window closed", d.Count)
	}
}

func TestFixedWindow_Decision(t *testing.T) {
	l, mc := newTestWindow(t, WithWindow(time.Minute))
	start := mc.Now()

	d := l.Check(3, "tok")
	if d.Limit != 3 || d.Count != 1 || d.Remaining != 2 {
		t.Fatalf("first decision = %+v", d)
	}
	if !d.ResetAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("ResetAt = %v, want %v", d.ResetAt, start.Add(time.Minute))
	}

	mc.Add(20 * time.Second)
	l.Check(3, "tok")
	d = l.Check(3, "tok")
	if d.Remaining != 0 || !d.Allowed {
		t.Fatalf("third decision = %+v", d)
	}
	if !d.ResetAt.Equal(start.Add(time.Minute)) {
		t.Fatal("ResetAt must not move with later hits")
	}

	d = l.Check(3, "tok")
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("fourth decision = %+v", d)
	}
	if got := d.RetryAfter(mc.Now()); got != 40*time.Second {
		t.Fatalf("RetryAfter = %v, want 40s", got)
	}
}

func TestDecision_RetryAfterFloor(t *testing.T) {
	now := time.Unix(1000, 0)
	d := Decision{ResetAt: now.Add(-time.Second)}
	if got := d.RetryAfter(now); got != time.Second {
		t.Fatalf("RetryAfter = %v, want 1s", got)
	}
}

func TestFixedWindow_TokenCapacity(t *testing.T) {
	l, _ := newTestWindow(t, WithMaxTokens(2))

	l.Allow(1, "a")
	l.Allow(1, "b")
	if l.Allow(1, "a") {
		t.Fatal("a is over limit")
	}

	// c pushes out b, the least recently seen token
	l.Allow(1, "c")
	if l.Tracked() != 2 {
		t.Fatalf("Tracked = %d, want 2", l.Tracked())
	}
	if !l.Allow(1, "b") {
		t.Fatal("an evicted token starts from zero")
	}
}

func TestFixedWindow_OnLimited(t *testing.T) {
	var calls []string
	l, _ := newTestWindow(t, WithOnLimited(func(category, token string) {
		calls = append(calls, category+"/"+token)
	}))

	l.Allow(1, "tok")
	l.Allow(1, "tok")
	l.Allow(1, "tok")

	if len(calls) != 2 || calls[0] != "test/tok" {
		t.Fatalf("onLimited calls = %v", calls)
	}
}

func TestFixedWindow_Reset(t *testing.T) {
	l, _ := newTestWindow(t)

	l.Allow(1, "tok")
	l.Reset()
	if l.Tracked() != 0 {
		t.Fatal("Reset should forget all tokens")
	}
	if !l.Allow(1, "tok") {
		t.Fatal("token should start over after Reset")
	}
}

func TestFixedWindow_Concurrent(t *testing.T) {
	l, _ := newTestWindow(t)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(10, "shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 10 {
		t.Fatalf("allowed = %d, want exactly 10", allowed.Load())
	}
}

func TestFixedWindow_Defaults(t *testing.T) {
	l := NewFixedWindow("defaults")
	if l.Window() != DefaultWindow {
		t.Fatalf("Window = %v", l.Window())
	}
	st := l.Counters().Stats()
	if st.Max != DefaultMaxTokens || st.Name != "ratelimit:defaults" {
		t.Fatalf("counter stats = %+v", st)
	}
}
