package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "nominatim"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats.Providers) != 0 || len(stats.Engines) != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}

	// Test Tracking
	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)
	tr.TrackAPIZero(provider)

	// Verify Snapshot
	stats = tr.Snapshot()
	pStats, ok := stats.Providers[provider]
	if !ok {
		t.Fatalf("Expected stats for provider %s", provider)
	}

	if pStats.CacheHits != 1 {
		t.Errorf("Expected 1 CacheHit, got %d", pStats.CacheHits)
	}
	if pStats.CacheMisses != 1 {
		t.Errorf("Expected 1 CacheMiss, got %d", pStats.CacheMisses)
	}
	if pStats.APISuccess != 1 {
		t.Errorf("Expected 1 APISuccess, got %d", pStats.APISuccess)
	}
	if pStats.APIFailures != 1 {
		t.Errorf("Expected 1 APIFailure, got %d", pStats.APIFailures)
	}
	if pStats.APIZeroResult != 1 {
		t.Errorf("Expected 1 APIZeroResult, got %d", pStats.APIZeroResult)
	}
}

func TestTracker_Engines(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackQuery("areas")
			tr.TrackSuperseded("areas")
			tr.TrackDropped("points")
		}()
	}
	wg.Wait()
	tr.TrackFailure("points")

	stats := tr.Snapshot()
	if got := stats.Engines["areas"]; got.Queries != 50 || got.Superseded != 50 {
		t.Errorf("areas = %+v, want 50 queries and 50 superseded", got)
	}
	if got := stats.Engines["points"]; got.Dropped != 50 || got.Failures != 1 {
		t.Errorf("points = %+v, want 50 dropped and 1 failure", got)
	}
}
