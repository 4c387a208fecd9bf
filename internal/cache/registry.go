package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrDuplicateCache = errors.New("cache already registered")

// Instance is the type-erased view of a Cache used for management and stats
type Instance interface {
	Name() string
	Stats() Stats
	HitRate() float64
	Clear() int
	InvalidateMatching(Matcher) int
	ResetStats()
}

var _ Instance = (*Cache[struct{}])(nil)

// Registry tracks every named cache in the process.
// Operations spanning instances are not atomic across them, a reader may see
// some instances already cleared. Entries refill on the next miss.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]Instance
}

func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]Instance)}
}

// Register adds inst under its name
func (r *Registry) Register(inst Instance) error {
	if inst == nil {
		return fmt.Errorf("register cache: nil instance")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[inst.Name()]; ok {
		return fmt.Errorf("register cache %q: %w", inst.Name(), ErrDuplicateCache)
	}
	r.instances[inst.Name()] = inst
	return nil
}

func (r *Registry) Get(name string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	return inst, ok
}

// Instances returns the registered caches sorted by name
func (r *Registry) Instances() []Instance {
	r.mu.RLock()
	out := make([]Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ClearAll empties every cache and returns the total number of entries dropped
func (r *Registry) ClearAll() int {
	n := 0
	for _, inst := range r.Instances() {
		n += inst.Clear()
	}
	return n
}

// InvalidateMatching applies m to every cache
func (r *Registry) InvalidateMatching(m Matcher) int {
	n := 0
	for _, inst := range r.Instances() {
		n += inst.InvalidateMatching(m)
	}
	return n
}

// ResetStats zeroes counters on every cache
func (r *Registry) ResetStats() {
	for _, inst := range r.Instances() {
		inst.ResetStats()
	}
}

// Summary aggregates stats across instances
type Summary struct {
	Caches        []Stats `json:"caches"`
	TotalEntries  int     `json:"total_entries"`
	TotalCapacity int     `json:"total_capacity"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
}

// HitRate across all instances, 0 before the first lookup
func (s Summary) HitRate() float64 { return hitRate(s.Hits, s.Misses) }

// Utilization is TotalEntries/TotalCapacity as a percentage
func (s Summary) Utilization() float64 {
	if s.TotalCapacity == 0 {
		return 0
	}
	return float64(s.TotalEntries) / float64(s.TotalCapacity) * 100
}

// Snapshot collects stats from every registered cache
func (r *Registry) Snapshot() Summary {
	var s Summary
	for _, inst := range r.Instances() {
		st := inst.Stats()
		s.Caches = append(s.Caches, st)
		s.TotalEntries += st.Size
		s.TotalCapacity += st.Max
		s.Hits += st.Hits
		s.Misses += st.Misses
	}
	return s
}
