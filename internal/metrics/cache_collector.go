package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plushcare/portal/internal/cache"
)

// Snapshotter is satisfied by *cache.Registry
type Snapshotter interface {
	Snapshot() cache.Summary
}

// CacheCollector exports per-instance cache stats at scrape time.
// Counters follow the cache's own counters, so an admin stats reset shows up
// as a counter reset.
type CacheCollector struct {
	src Snapshotter

	entries   *prometheus.Desc
	capacity  *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
}

func NewCacheCollector(src Snapshotter) *CacheCollector {
	return &CacheCollector{
		src: src,
		entries: prometheus.NewDesc("portal_cache_entries",
			"Entries currently stored, including expired ones not yet removed", []string{"cache"}, nil),
		capacity: prometheus.NewDesc("portal_cache_capacity",
			"Maximum entries before LRU eviction", []string{"cache"}, nil),
		hits: prometheus.NewDesc("portal_cache_hits_total",
			"Lookups answered from the cache", []string{"cache"}, nil),
		misses: prometheus.NewDesc("portal_cache_misses_total",
			"Lookups that found nothing or an expired entry", []string{"cache"}, nil),
		evictions: prometheus.NewDesc("portal_cache_evictions_total",
			"Entries removed, by policy", []string{"cache", "reason"}, nil),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.capacity
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.src.Snapshot().Caches {
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(st.Size), st.Name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Max), st.Name)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits), st.Name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses), st.Name)

		ev := st.Evictions
		for reason, n := range map[cache.EvictReason]uint64{
			cache.EvictCapacity:    ev.Capacity,
			cache.EvictExpired:     ev.Expired,
			cache.EvictInvalidated: ev.Invalidated,
		} {
			ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(n), st.Name, string(reason))
		}
	}
}
