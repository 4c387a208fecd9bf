package cache

import "time"

// Stats is a point-in-time view of one cache instance
type Stats struct {
	Name      string        `json:"name"`
	Size      int           `json:"size"`
	Max       int           `json:"max"`
	TTL       time.Duration `json:"ttl"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions Evictions     `json:"evictions"`
}

// Evictions counts removals per policy
type Evictions struct {
	Capacity    uint64 `json:"capacity"`
	Expired     uint64 `json:"expired"`
	Invalidated uint64 `json:"invalidated"`
}

// HitRate returns hits as a percentage of lookups, 0 before the first lookup
func (s Stats) HitRate() float64 {
	return hitRate(s.Hits, s.Misses)
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Stats snapshots size, capacity and counters
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:   c.name,
		Size:   c.order.Len(),
		Max:    c.max,
		TTL:    c.ttl,
		Hits:   c.hits,
		Misses: c.misses,
		Evictions: Evictions{
			Capacity:    c.evCapacity,
			Expired:     c.evExpired,
			Invalidated: c.evInvalid,
		},
	}
}

// HitRate is hits/(hits+misses)*100, 0 when nothing has been looked up yet
func (c *Cache[V]) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hitRate(c.hits, c.misses)
}

// ResetStats zeroes the hit, miss and eviction counters. Entries are untouched.
func (c *Cache[V]) ResetStats() {
	c.mu.Lock()
	c.hits, c.misses = 0, 0
	c.evCapacity, c.evExpired, c.evInvalid = 0, 0, 0
	c.mu.Unlock()
}
