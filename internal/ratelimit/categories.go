package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Operation categories with their own budgets
const (
	CategoryPayments   = "payments"
	CategoryRewards    = "rewards"
	CategoryInvoicePDF = "invoice-pdf"
	CategoryMessages   = "messages"
	CategoryAPI        = "api"
	CategoryAdmin      = "admin"
)

// Policy is the budget of one category: Limit hits per Window per token,
// tracking at most MaxTokens tokens
type Policy struct {
	Limit     int
	Window    time.Duration
	MaxTokens int
}

// DefaultPolicies returns the budgets the portal ships with
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		CategoryPayments:   {Limit: 5, Window: time.Minute, MaxTokens: 500},
		CategoryRewards:    {Limit: 3, Window: time.Minute, MaxTokens: 500},
		CategoryInvoicePDF: {Limit: 10, Window: time.Minute, MaxTokens: 500},
		CategoryMessages:   {Limit: 20, Window: time.Minute, MaxTokens: 500},
		CategoryAPI:        {Limit: 120, Window: time.Minute, MaxTokens: 1000},
		CategoryAdmin:      {Limit: 30, Window: time.Minute, MaxTokens: 100},
	}
}

// Bound pairs a limiter with the limit its category checks against
type Bound struct {
	*FixedWindow
	Limit int
}

// CheckToken applies the category's limit
func (b Bound) CheckToken(token string) Decision {
	return b.Check(b.Limit, token)
}

// Categories holds one independent FixedWindow per category
type Categories struct {
	byName map[string]Bound
}

// NewCategories builds a limiter per policy. opts are applied to every limiter
// after the policy's own window and capacity.
func NewCategories(policies map[string]Policy, opts ...WindowOption) (*Categories, error) {
	c := &Categories{byName: make(map[string]Bound, len(policies))}
	for name, p := range policies {
		if p.Limit <= 0 {
			return nil, fmt.Errorf("rate limit category %q: limit must be > 0 (got %d)", name, p.Limit)
		}
		if p.Window <= 0 {
			return nil, fmt.Errorf("rate limit category %q: window must be > 0 (got %s)", name, p.Window)
		}
		all := append([]WindowOption{WithWindow(p.Window), WithMaxTokens(p.MaxTokens)}, opts...)
		c.byName[name] = Bound{FixedWindow: NewFixedWindow(name, all...), Limit: p.Limit}
	}
	return c, nil
}

// Get returns the limiter for a category
func (c *Categories) Get(name string) (Bound, bool) {
	b, ok := c.byName[name]
	return b, ok
}

// MustGet is Get for categories wired at startup, panics on unknown names
func (c *Categories) MustGet(name string) Bound {
	b, ok := c.byName[name]
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown category %q", name))
	}
	return b
}

// CategoryStats describes one category for the stats surface
type CategoryStats struct {
	Category string        `json:"category"`
	Limit    int           `json:"limit"`
	Window   time.Duration `json:"window"`
	Tracked  int           `json:"tracked"`
	Capacity int           `json:"capacity"`
}

// Stats lists every category sorted by name
func (c *Categories) Stats() []CategoryStats {
	out := make([]CategoryStats, 0, len(c.byName))
	for name, b := range c.byName {
		st := b.Counters().Stats()
		out = append(out, CategoryStats{
			Category: name,
			Limit:    b.Limit,
			Window:   b.Window(),
			Tracked:  st.Size,
			Capacity: st.Max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
