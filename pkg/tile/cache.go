package tile

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"roadscout/pkg/projection"
	"roadscout/pkg/tracker"
)

// Layer selects a tile source.
type Layer string

const (
	LayerStreet    Layer = "street"
	LayerSatellite Layer = "satellite"
)

// Key identifies one slippy-map tile on one layer.
type Key struct {
	Layer Layer
	Zoom  int
	X     int
	Y     int
}

// State describes a cache entry's lifecycle.
type State int

const (
	StatePending State = iota
	StateLoaded
	StateFailed
)

type entry struct {
	state    State
	img      image.Image
	failedAt time.Time
}

// Fetcher loads one tile image from its source.
type Fetcher interface {
	Fetch(ctx context.Context, k Key) (image.Image, error)
}

// Cache is an in-memory tile store with single-flight fetches. A tile is
// requested at most once while pending or loaded; a failed tile is held
// back for retryAfter before it may be fetched again.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	gen     uint64

	fetcher    Fetcher
	tracker    *tracker.Tracker
	retryAfter time.Duration
	onLoad     func()
}

// NewCache creates a tile cache on top of the given fetcher.
func NewCache(f Fetcher, t *tracker.Tracker, retryAfter time.Duration) *Cache {
	return &Cache{
		entries:    make(map[Key]*entry),
		fetcher:    f,
		tracker:    t,
		retryAfter: retryAfter,
	}
}

// OnLoad registers a callback invoked (outside the cache lock) whenever a
// tile finishes loading. The render loop uses it to schedule a repaint.
func (c *Cache) OnLoad(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoad = fn
}

// Get returns the tile image when it is loaded. It never triggers a fetch.
func (c *Cache) Get(k Key) (image.Image, State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, StatePending, false
	}
	return e.img, e.state, e.state == StateLoaded
}

// Request ensures a fetch is underway for the tile. Tiles outside the
// valid index range for their zoom level are rejected without any network
// activity. Calling Request for a pending or loaded tile is a no-op.
func (c *Cache) Request(ctx context.Context, k Key) {
	if !projection.InRange(k.X, k.Y, k.Zoom) {
		c.tracker.TrackRejected(string(k.Layer))
		slog.Debug("Rejecting out-of-range tile", "layer", k.Layer, "z", k.Zoom, "x", k.X, "y", k.Y)
		return
	}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		switch e.state {
		case StatePending:
			c.mu.Unlock()
			return
		case StateLoaded:
			c.tracker.TrackCacheHit(string(k.Layer))
			c.mu.Unlock()
			return
		case StateFailed:
			if time.Since(e.failedAt) < c.retryAfter {
				c.mu.Unlock()
				return
			}
		}
	}
	c.entries[k] = &entry{state: StatePending}
	gen := c.gen
	c.tracker.TrackCacheMiss(string(k.Layer))
	c.mu.Unlock()

	// The fetch outlives the caller: a frame handler returns long before the
	// tile arrives. Cancellation happens through Clear's generation bump.
	go c.fetch(context.WithoutCancel(ctx), k, gen)
}

// Preload requests every tile in the range on the given layer and zoom.
func (c *Cache) Preload(ctx context.Context, layer Layer, zoom int, r projection.TileRange) {
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			c.Request(ctx, Key{Layer: layer, Zoom: zoom, X: x, Y: y})
		}
	}
}

func (c *Cache) fetch(ctx context.Context, k Key, gen uint64) {
	img, err := c.fetcher.Fetch(ctx, k)

	c.mu.Lock()
	if gen != c.gen {
		// The cache was cleared while this fetch was in flight.
		c.mu.Unlock()
		return
	}
	e, ok := c.entries[k]
	if !ok || e.state != StatePending {
		c.mu.Unlock()
		return
	}
	var cb func()
	if err != nil {
		e.state = StateFailed
		e.failedAt = time.Now()
		slog.Debug("Tile fetch failed", "layer", k.Layer, "z", k.Zoom, "x", k.X, "y", k.Y, "error", err)
	} else {
		e.state = StateLoaded
		e.img = img
		cb = c.onLoad
	}
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Clear drops every entry and invalidates all in-flight fetches. Used on
// layer switches so stale imagery never lands in the fresh cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.gen++
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
	slog.Debug("Tile cache cleared")
}

// Len reports the number of entries in any state.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
