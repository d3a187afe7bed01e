// Package tracker collects usage counters per tile layer and fetch host.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks tile cache and fetch statistics per scope (layer or host).
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*Stats
}

// Stats holds counters for one scope. Fields are accessed atomically.
type Stats struct {
	CacheHits     int64
	CacheMisses   int64
	FetchSuccess  int64
	FetchFailures int64
	Rejected      int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*Stats),
	}
}

// getStats returns the stats object for a scope, creating it if needed.
func (t *Tracker) getStats(scope string) *Stats {
	t.mu.RLock()
	s, ok := t.stats[scope]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[scope]; ok {
		return s
	}
	s = &Stats{}
	t.stats[scope] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(scope string) {
	atomic.AddInt64(&t.getStats(scope).CacheHits, 1)
}

// TrackCacheMiss increments the cache miss counter.
func (t *Tracker) TrackCacheMiss(scope string) {
	atomic.AddInt64(&t.getStats(scope).CacheMisses, 1)
}

// TrackFetchSuccess increments the successful fetch counter.
func (t *Tracker) TrackFetchSuccess(scope string) {
	atomic.AddInt64(&t.getStats(scope).FetchSuccess, 1)
}

// TrackFetchFailure increments the failed fetch counter.
func (t *Tracker) TrackFetchFailure(scope string) {
	atomic.AddInt64(&t.getStats(scope).FetchFailures, 1)
}

// TrackRejected counts requests refused before any network activity
// (out-of-range tile coordinates).
func (t *Tracker) TrackRejected(scope string) {
	atomic.AddInt64(&t.getStats(scope).Rejected, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]Stats)
	for k, v := range t.stats {
		result[k] = Stats{
			CacheHits:     atomic.LoadInt64(&v.CacheHits),
			CacheMisses:   atomic.LoadInt64(&v.CacheMisses),
			FetchSuccess:  atomic.LoadInt64(&v.FetchSuccess),
			FetchFailures: atomic.LoadInt64(&v.FetchFailures),
			Rejected:      atomic.LoadInt64(&v.Rejected),
		}
	}
	return result
}
