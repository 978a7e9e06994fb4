package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per provider and per search engine.
type Tracker struct {
	mu      sync.RWMutex
	stats   map[string]*ProviderStats
	engines map[string]*EngineStats
}

// ProviderStats holds metrics for a specific upstream provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIFailures   int64 `json:"api_failures"`
	APIZeroResult int64 `json:"api_zero_result"`
}

// EngineStats holds outcome counters for a search engine.
type EngineStats struct {
	Queries    int64 `json:"queries"`
	Superseded int64 `json:"superseded"`
	Failures   int64 `json:"failures"`
	Dropped    int64 `json:"dropped"`
}

// Stats is a point-in-time copy of all counters.
type Stats struct {
	Providers map[string]ProviderStats `json:"providers"`
	Engines   map[string]EngineStats   `json:"engines"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats:   make(map[string]*ProviderStats),
		engines: make(map[string]*EngineStats),
	}
}

func getOrCreate[T any](mu *sync.RWMutex, m map[string]*T, key string) *T {
	mu.RLock()
	s, ok := m[key]
	mu.RUnlock()
	if ok {
		return s
	}

	mu.Lock()
	defer mu.Unlock()
	// Double check
	if s, ok = m[key]; ok {
		return s
	}
	s = new(T)
	m[key] = s
	return s
}

func (t *Tracker) provider(name string) *ProviderStats {
	return getOrCreate(&t.mu, t.stats, name)
}

func (t *Tracker) engine(name string) *EngineStats {
	return getOrCreate(&t.mu, t.engines, name)
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.provider(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.provider(provider).CacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.provider(provider).APISuccess, 1)
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.provider(provider).APIFailures, 1)
}

func (t *Tracker) TrackAPIZero(provider string) {
	atomic.AddInt64(&t.provider(provider).APIZeroResult, 1)
}

// TrackQuery counts a non-empty search issued by an engine.
func (t *Tracker) TrackQuery(engine string) {
	atomic.AddInt64(&t.engine(engine).Queries, 1)
}

// TrackSuperseded counts a search whose results were discarded for a newer one.
func (t *Tracker) TrackSuperseded(engine string) {
	atomic.AddInt64(&t.engine(engine).Superseded, 1)
}

func (t *Tracker) TrackFailure(engine string) {
	atomic.AddInt64(&t.engine(engine).Failures, 1)
}

// TrackDropped counts a provider result rejected by an engine filter.
func (t *Tracker) TrackDropped(engine string) {
	atomic.AddInt64(&t.engine(engine).Dropped, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := Stats{
		Providers: make(map[string]ProviderStats, len(t.stats)),
		Engines:   make(map[string]EngineStats, len(t.engines)),
	}
	for k, v := range t.stats {
		result.Providers[k] = ProviderStats{
			CacheHits:     atomic.LoadInt64(&v.CacheHits),
			CacheMisses:   atomic.LoadInt64(&v.CacheMisses),
			APISuccess:    atomic.LoadInt64(&v.APISuccess),
			APIFailures:   atomic.LoadInt64(&v.APIFailures),
			APIZeroResult: atomic.LoadInt64(&v.APIZeroResult),
		}
	}
	for k, v := range t.engines {
		result.Engines[k] = EngineStats{
			Queries:    atomic.LoadInt64(&v.Queries),
			Superseded: atomic.LoadInt64(&v.Superseded),
			Failures:   atomic.LoadInt64(&v.Failures),
			Dropped:    atomic.LoadInt64(&v.Dropped),
		}
	}
	return result
}
