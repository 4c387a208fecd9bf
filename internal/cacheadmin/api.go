package cacheadmin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plushcare/portal/internal/cache"
	"github.com/plushcare/portal/internal/log"
	"github.com/plushcare/portal/internal/portalcache"
	"github.com/plushcare/portal/internal/ratelimit"
)

// maxBodyBytes bounds a clear request, directives are tiny
const maxBodyBytes = 4 << 10

// API serves the operator cache and rate limit endpoints
type API struct {
	caches *portalcache.Set
	limits *ratelimit.Categories
	token  []byte
	logger log.Logger
}

// NewAPI creates the admin API. An empty token disables every route with 401.
func NewAPI(caches *portalcache.Set, limits *ratelimit.Categories, token string, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		caches: caches,
		limits: limits,
		token:  []byte(token),
		logger: logger,
	}
}

// RegisterRoutes attaches the admin endpoints under /api. Every /api request
// counts against the api category, admin routes then against the admin
// category and bearer auth in that order.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		api.guard(r, ratelimit.CategoryAPI)

		r.Group(func(r chi.Router) {
			api.guard(r, ratelimit.CategoryAdmin)
			r.Use(api.requireToken)

			r.Post("/admin/cache/clear", api.HandleClear)
			r.Get("/admin/cache/stats", api.HandleCacheStats)
			r.Get("/admin/ratelimit/stats", api.HandleRateLimitStats)
		})
	})
}

// guard limits r by client IP under category, a category without a policy is unguarded
func (api *API) guard(r chi.Router, category string) {
	if api.limits == nil {
		return
	}
	if b, ok := api.limits.Get(category); ok {
		r.Use(ratelimit.GuardCategory(b, ratelimit.ByClientIP))
	}
}

func (api *API) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || len(api.token) == 0 || subtle.ConstantTimeCompare([]byte(got), api.token) != 1 {
			api.logger.Warn(r.Context(), "admin request rejected", "path", r.URL.Path)
			api.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// ClearResponse reports what a clear directive did
type ClearResponse struct {
	Action  string `json:"action"`
	Cleared int    `json:"cleared"`
}

// HandleClear applies exactly one directive from the request body
func (api *API) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ClearRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	action, err := req.directive()
	if err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	resp := ClearResponse{Action: action}
	switch action {
	case ActionAll:
		resp.Cleared = api.caches.Registry.ClearAll()
	case ActionPattern:
		resp.Cleared = api.caches.Registry.InvalidateMatching(cache.Contains(*req.Pattern))
	case ActionCustomer:
		n, err := api.caches.InvalidateCustomer(*req.CustomerID, req.Email)
		if err != nil {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		resp.Cleared = n
	case ActionMetrics:
		api.caches.Registry.ResetStats()
	}

	api.logger.Info(ctx, "cache cleared",
		"action", resp.Action,
		"cleared", resp.Cleared,
	)
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// CacheStats is one instance in the stats response
type CacheStats struct {
	Size      int             `json:"size"`
	Max       int             `json:"max"`
	TTL       string          `json:"ttl"`
	Hits      uint64          `json:"hits"`
	Misses    uint64          `json:"misses"`
	HitRate   float64         `json:"hit_rate"`
	Evictions cache.Evictions `json:"evictions"`
}

type StatsSummary struct {
	TotalEntries  int     `json:"total_entries"`
	TotalCapacity int     `json:"total_capacity"`
	Utilization   float64 `json:"utilization"`
	HitRate       float64 `json:"hit_rate"`
}

type StatsResponse struct {
	Caches     map[string]CacheStats `json:"caches"`
	Summary    StatsSummary          `json:"summary"`
	ServerTime time.Time             `json:"server_time"`
}

// HandleCacheStats reports per-cache size and counters plus the aggregate
func (api *API) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	snap := api.caches.Registry.Snapshot()

	resp := StatsResponse{
		Caches: make(map[string]CacheStats, len(snap.Caches)),
		Summary: StatsSummary{
			TotalEntries:  snap.TotalEntries,
			TotalCapacity: snap.TotalCapacity,
			Utilization:   round2(snap.Utilization()),
			HitRate:       round2(snap.HitRate()),
		},
		ServerTime: time.Now().UTC().Truncate(time.Second),
	}
	for _, st := range snap.Caches {
		resp.Caches[st.Name] = CacheStats{
			Size:      st.Size,
			Max:       st.Max,
			TTL:       st.TTL.String(),
			Hits:      st.Hits,
			Misses:    st.Misses,
			HitRate:   round2(st.HitRate()),
			Evictions: st.Evictions,
		}
	}
	api.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// LimitStats is one category in the rate limit stats response
type LimitStats struct {
	Limit    int    `json:"limit"`
	Window   string `json:"window"`
	Tracked  int    `json:"tracked"`
	Capacity int    `json:"capacity"`
}

func (api *API) HandleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]LimitStats{}
	if api.limits != nil {
		for _, st := range api.limits.Stats() {
			out[st.Category] = LimitStats{
				Limit:    st.Limit,
				Window:   st.Window.String(),
				Tracked:  st.Tracked,
				Capacity: st.Capacity,
			}
		}
	}
	api.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"categories": out})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, context.Canceled) {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
