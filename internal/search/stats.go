package search

import (
	"sync"
	"time"
)

// Stats holds running counters over the engine's lifetime. Every call
// into the engine updates them exactly once, whether it succeeds or not.
type Stats struct {
	TotalSearches int64     `json:"totalSearches"`
	TotalErrors   int64     `json:"totalErrors"`
	CacheHits     int64     `json:"cacheHits"`
	CacheMisses   int64     `json:"cacheMisses"`
	AvgTimeMs     float64   `json:"avgTimeMs"`
	LastSearchAt  time.Time `json:"lastSearchAt"`
}

type statsTracker struct {
	mu          sync.Mutex
	stats       Stats
	totalTimeMs int64
}

func newStatsTracker() *statsTracker {
	return &statsTracker{}
}

func (t *statsTracker) record(elapsed time.Duration, cacheHit, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TotalSearches++
	if failed {
		t.stats.TotalErrors++
	}
	if cacheHit {
		t.stats.CacheHits++
	} else {
		t.stats.CacheMisses++
	}
	t.totalTimeMs += elapsed.Milliseconds()
	t.stats.AvgTimeMs = float64(t.totalTimeMs) / float64(t.stats.TotalSearches)
	t.stats.LastSearchAt = time.Now()
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *statsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{}
	t.totalTimeMs = 0
}
