package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/plushcare/portal/internal/cache"
)

const (
	DefaultWindow    = time.Minute
	DefaultMaxTokens = 500
)

// Decision is the outcome of one Check
type Decision struct {
	Allowed bool
	// Count is the number of hits recorded for the token in the current window, including this one
	Count     int
	Limit     int
	Remaining int
	// ResetAt is when the current window ends and the count starts over
	ResetAt time.Time
	// CheckedAt is the limiter's own clock reading for this hit
	CheckedAt time.Time
}

// RetryAfter returns the wait until the window resets, at least one second
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}

// Checker is the contract handlers depend on, so a sliding window or token
// bucket can be swapped in without touching callers
type Checker interface {
	Check(limit int, token string) Decision
}

type counter struct {
	mu    sync.Mutex
	count int
	start time.Time
}

// FixedWindow counts hits per token. The window opens on a token's first hit
// and is not extended by later hits. When it elapses, or the token is pushed
// out by the token capacity, the next hit starts from zero.
//
// A caller can get up to 2*limit hits through across a window boundary.
type FixedWindow struct {
	category string
	window   time.Duration
	clock    clock.Clock
	counters *cache.Cache[*counter]

	// mu serializes the get-or-create of a counter so two first hits share it
	mu sync.Mutex

	onLimited func(category, token string)
}

type WindowOption func(*windowOptions)

type windowOptions struct {
	window    time.Duration
	maxTokens int
	clock     clock.Clock
	onLimited func(category, token string)
}

// WithWindow sets the window length
func WithWindow(d time.Duration) WindowOption {
	return func(o *windowOptions) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithMaxTokens bounds how many distinct tokens are tracked, the least recently
// seen token is dropped first
func WithMaxTokens(n int) WindowOption {
	return func(o *windowOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func WithWindowClock(c clock.Clock) WindowOption {
	return func(o *windowOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithOnLimited sets a callback for every rejected Check, used for metrics
func WithOnLimited(fn func(category, token string)) WindowOption {
	return func(o *windowOptions) { o.onLimited = fn }
}

// NewFixedWindow creates a limiter for one operation category
func NewFixedWindow(category string, opts ...WindowOption) *FixedWindow {
	o := windowOptions{
		window:    DefaultWindow,
		maxTokens: DefaultMaxTokens,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &FixedWindow{
		category: category,
		window:   o.window,
		clock:    o.clock,
		counters: cache.New[*counter]("ratelimit:"+category,
			cache.WithMaxEntries(o.maxTokens),
			cache.WithTTL(o.window),
			cache.WithClock(o.clock),
		),
		onLimited: o.onLimited,
	}
}

func (l *FixedWindow) Category() string         { return l.category }
func (l *FixedWindow) Window() time.Duration    { return l.window }
func (l *FixedWindow) Tracked() int             { return l.counters.Len() }
func (l *FixedWindow) Counters() cache.Instance { return l.counters }

// Check records a hit for token. Hits 1..limit in a window are allowed, every
// later hit in the same window is rejected. A limit <= 0 rejects everything.
func (l *FixedWindow) Check(limit int, token string) Decision {
	c := l.counterFor(token)

	c.mu.Lock()
	c.count++
	count := c.count
	resetAt := c.start.Add(l.window)
	c.mu.Unlock()

	d := Decision{
		Allowed:   limit > 0 && count <= limit,
		Count:     count,
		Limit:     limit,
		ResetAt:   resetAt,
		CheckedAt: l.clock.Now(),
	}
	if rem := limit - count; rem > 0 {
		d.Remaining = rem
	}
	if !d.Allowed && l.onLimited != nil {
		l.onLimited(l.category, token)
	}
	return d
}

// Allow is Check reduced to the accept/reject bit
func (l *FixedWindow) Allow(limit int, token string) bool {
	return l.Check(limit, token).Allowed
}

// Reset forgets every tracked token
func (l *FixedWindow) Reset() {
	l.counters.Clear()
}

func (l *FixedWindow) counterFor(token string) *counter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.counters.Get(token); ok {
		return c
	}
	// only the first hit writes the entry, so its ttl marks the window end
	c := &counter{start: l.clock.Now()}
	l.counters.Set(token, c)
	return c
}
