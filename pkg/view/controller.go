package view

import (
	"log/slog"
	"math"
	"sync"

	"roadscout/pkg/model"
	"roadscout/pkg/projection"
	"roadscout/pkg/tile"
)

// Hit-test radii in screen pixels. Touch input is forgiving, a pointer
// is precise.
const (
	TouchHitRadiusPx   = 28
	PointerHitRadiusPx = 16
)

// Controller owns the interactive map state: center, zoom, pan offset,
// active layer and the follow-user mode. All methods are safe for
// concurrent use.
type Controller struct {
	mu sync.Mutex

	centerLat float64
	centerLng float64
	zoom      int
	panX      float64
	panY      float64
	width     int
	height    int

	layer          tile.Layer
	followUser     bool
	userInteracted bool

	lastLat float64
	lastLng float64
	hasFix  bool

	onChange      func()
	onLayerChange func(tile.Layer)
	onMarkerTap   func(model.Marker)
}

// New creates a controller centered on the given position.
func New(lat, lng float64, zoom int, layer tile.Layer) *Controller {
	return &Controller{
		centerLat:  lat,
		centerLng:  lng,
		zoom:       clampZoom(zoom),
		layer:      layer,
		followUser: true,
	}
}

func clampZoom(z int) int {
	if z < projection.MinZoom {
		return projection.MinZoom
	}
	if z > projection.MaxZoom {
		return projection.MaxZoom
	}
	return z
}

// OnChange registers a callback fired (outside the lock) after any state
// change that needs a repaint.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// OnLayerChange registers a callback fired when the active layer switches.
// The tile cache subscribes here to clear itself.
func (c *Controller) OnLayerChange(fn func(tile.Layer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLayerChange = fn
}

// OnMarkerTap registers the handler invoked when Tap lands on a marker.
func (c *Controller) OnMarkerTap(fn func(model.Marker)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMarkerTap = fn
}

// SetCanvasSize updates the render surface dimensions.
func (c *Controller) SetCanvasSize(w, h int) {
	c.mu.Lock()
	c.width = w
	c.height = h
	cb := c.onChange
	c.mu.Unlock()
	fire(cb)
}

// Pan shifts the view by a screen-pixel delta and suspends follow mode:
// a user who dragged the map keeps the view where they put it.
func (c *Controller) Pan(dx, dy float64) {
	c.mu.Lock()
	c.panX += dx
	c.panY += dy
	c.userInteracted = true
	c.followUser = false
	cb := c.onChange
	c.mu.Unlock()
	fire(cb)
}

// SetZoom sets the zoom level, clamped to the valid range. Any pan offset
// is folded away so the view stays centered on the same spot.
func (c *Controller) SetZoom(z int) {
	c.mu.Lock()
	z = clampZoom(z)
	if z == c.zoom {
		c.mu.Unlock()
		return
	}
	// Re-anchor the center on whatever the panned view was looking at,
	// then drop the offset.
	center := projection.GeoForPixel(float64(c.width)/2, float64(c.height)/2, c.viewportLocked())
	c.centerLat = center.Lat
	c.centerLng = center.Lon
	c.panX = 0
	c.panY = 0
	c.zoom = z
	cb := c.onChange
	c.mu.Unlock()
	slog.Debug("Zoom changed", "zoom", z)
	fire(cb)
}

// ZoomIn and ZoomOut step the zoom level by one.
func (c *Controller) ZoomIn()  { c.SetZoom(c.Zoom() + 1) }
func (c *Controller) ZoomOut() { c.SetZoom(c.Zoom() - 1) }

// Zoom returns the current zoom level.
func (c *Controller) Zoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// SetLayer switches the active tile layer.
func (c *Controller) SetLayer(l tile.Layer) {
	c.mu.Lock()
	if l == c.layer {
		c.mu.Unlock()
		return
	}
	c.layer = l
	lcb := c.onLayerChange
	cb := c.onChange
	c.mu.Unlock()
	slog.Info("Layer switched", "layer", l)
	if lcb != nil {
		lcb(l)
	}
	fire(cb)
}

// Layer returns the active tile layer.
func (c *Controller) Layer() tile.Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer
}

// HandlePosition feeds a new fix into the view. The camera recenters only
// while follow mode is on and the user has not taken over the view.
func (c *Controller) HandlePosition(lat, lng float64) {
	c.mu.Lock()
	c.lastLat = lat
	c.lastLng = lng
	c.hasFix = true
	var cb func()
	if c.followUser && !c.userInteracted {
		c.centerLat = lat
		c.centerLng = lng
		c.panX = 0
		c.panY = 0
		cb = c.onChange
	}
	c.mu.Unlock()
	fire(cb)
}

// Recenter snaps the camera back to the last fix and re-enables follow
// mode, clearing the manual-interaction flag.
func (c *Controller) Recenter() {
	c.mu.Lock()
	c.followUser = true
	c.userInteracted = false
	c.panX = 0
	c.panY = 0
	if c.hasFix {
		c.centerLat = c.lastLat
		c.centerLng = c.lastLng
	}
	cb := c.onChange
	c.mu.Unlock()
	fire(cb)
}

// Following reports whether the camera tracks incoming fixes.
func (c *Controller) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.followUser && !c.userInteracted
}

// Viewport returns a snapshot of the current view geometry.
func (c *Controller) Viewport() projection.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewportLocked()
}

func (c *Controller) viewportLocked() projection.Viewport {
	return projection.Viewport{
		CenterLat: c.centerLat,
		CenterLng: c.centerLng,
		Zoom:      c.zoom,
		PanX:      c.panX,
		PanY:      c.panY,
		Width:     c.width,
		Height:    c.height,
	}
}

// HitTest finds the marker nearest to the screen point within the input
// type's radius. Returns false when nothing is close enough.
func (c *Controller) HitTest(px, py float64, markers []model.Marker, touch bool) (model.Marker, bool) {
	radius := float64(PointerHitRadiusPx)
	if touch {
		radius = TouchHitRadiusPx
	}
	vp := c.Viewport()

	var best model.Marker
	bestDist := math.Inf(1)
	for _, m := range markers {
		mx, my := projection.PixelForGeo(m.Lat, m.Lon, vp)
		d := math.Hypot(mx-px, my-py)
		if d <= radius && d < bestDist {
			best = m
			bestDist = d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// Tap runs a hit test and, on a hit, invokes the registered marker handler.
func (c *Controller) Tap(px, py float64, markers []model.Marker, touch bool) bool {
	m, ok := c.HitTest(px, py, markers, touch)
	if !ok {
		return false
	}
	c.mu.Lock()
	cb := c.onMarkerTap
	c.mu.Unlock()
	if cb != nil {
		cb(m)
	}
	return true
}

func fire(cb func()) {
	if cb != nil {
		cb()
	}
}
