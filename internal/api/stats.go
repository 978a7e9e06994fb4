package api

import (
	"net/http"

	"geoquiz/pkg/tracker"
)

// StatsHandler reports provider and search engine counters.
type StatsHandler struct {
	tracker *tracker.Tracker
	cache   interface{ Len() int }
}

// NewStatsHandler creates a new StatsHandler. cache may be nil.
func NewStatsHandler(t *tracker.Tracker, cache interface{ Len() int }) *StatsHandler {
	return &StatsHandler{tracker: t, cache: cache}
}

// ProviderStatsDTO is the per-provider view with a derived cache hit rate.
type ProviderStatsDTO struct {
	tracker.ProviderStats
	HitRate int64 `json:"hit_rate"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Providers     map[string]ProviderStatsDTO    `json:"providers"`
	Engines       map[string]tracker.EngineStats `json:"engines"`
	MemoryEntries int                            `json:"memory_cache_entries"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Providers: make(map[string]ProviderStatsDTO, len(snapshot.Providers)),
		Engines:   snapshot.Engines,
	}
	for provider, stats := range snapshot.Providers {
		var hitRate int64
		if total := stats.CacheHits + stats.CacheMisses; total > 0 {
			hitRate = (stats.CacheHits * 100) / total
		}
		resp.Providers[provider] = ProviderStatsDTO{ProviderStats: stats, HitRate: hitRate}
	}
	if resp.Engines == nil {
		resp.Engines = map[string]tracker.EngineStats{}
	}
	if h.cache != nil {
		resp.MemoryEntries = h.cache.Len()
	}

	writeJSON(w, http.StatusOK, resp)
}
