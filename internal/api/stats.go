package api

import (
	"net/http"
	"time"

	"roadscout/pkg/render"
	"roadscout/pkg/tile"
	"roadscout/pkg/tracker"
)

// StatsHandler reports runtime counters for the diagnostics panel.
type StatsHandler struct {
	tracker *tracker.Tracker
	cache   *tile.Cache
	loop    *render.Loop
	started time.Time
}

func NewStatsHandler(t *tracker.Tracker, c *tile.Cache, loop *render.Loop) *StatsHandler {
	return &StatsHandler{tracker: t, cache: c, loop: loop, started: time.Now()}
}

type ScopeStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	FetchSuccess  int64 `json:"fetch_success"`
	FetchFailures int64 `json:"fetch_errors"`
	Rejected      int64 `json:"rejected"`
	HitRate       int64 `json:"hit_rate"`
}

type StatsResponse struct {
	UptimeSec   int64                    `json:"uptime_sec"`
	CachedTiles int                      `json:"cached_tiles"`
	FramesDrawn uint64                   `json:"frames_drawn"`
	Scopes      map[string]ScopeStatsDTO `json:"scopes"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UptimeSec:   int64(time.Since(h.started).Seconds()),
		CachedTiles: h.cache.Len(),
		FramesDrawn: h.loop.FrameCount(),
		Scopes:      make(map[string]ScopeStatsDTO),
	}

	for scope, stats := range h.tracker.Snapshot() {
		total := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if total > 0 {
			hitRate = (stats.CacheHits * 100) / total
		}
		resp.Scopes[scope] = ScopeStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			FetchSuccess:  stats.FetchSuccess,
			FetchFailures: stats.FetchFailures,
			Rejected:      stats.Rejected,
			HitRate:       hitRate,
		}
	}
	writeJSON(w, resp)
}
