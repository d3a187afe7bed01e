package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileForGeo(t *testing.T) {
	tests := []struct {
		name  string
		lat   float64
		lng   float64
		zoom  int
		wantX int
		wantY int
	}{
		{"Origin at z0", 0, 0, 0, 0, 0},
		{"Greenwich z1", 51.5, 0, 1, 1, 0},
		{"Mumbai z14", 19.0760, 72.8777, 14, 11508, 7307},
		{"South of clamp", -89.9, 0, 4, 8, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := TileForGeo(tt.lat, tt.lng, tt.zoom)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestTileGeoRoundTrip(t *testing.T) {
	// The NW corner of the tile containing a point must map back to the
	// same tile index.
	for _, zoom := range []int{3, 10, 14, 18} {
		x, y := TileForGeo(48.1371, 11.5754, zoom)
		p := GeoForTile(x, y, zoom)
		// Nudge inside the tile to dodge floor boundary error.
		x2, y2 := TileForGeo(p.Lat-1e-9, p.Lon+1e-9, zoom)
		require.Equal(t, x, x2, "zoom %d x", zoom)
		require.Equal(t, y, y2, "zoom %d y", zoom)
	}
}

func TestWorldPixelRoundTrip(t *testing.T) {
	lat, lng := 19.0760, 72.8777
	for _, zoom := range []int{3, 8, 14, 18} {
		wx, wy := WorldPixel(lat, lng, zoom)
		p := GeoForWorldPixel(wx, wy, zoom)
		assert.InDelta(t, lat, p.Lat, 1e-6, "zoom %d", zoom)
		assert.InDelta(t, lng, p.Lon, 1e-6, "zoom %d", zoom)
	}
}

func TestPixelForGeoCenter(t *testing.T) {
	vp := Viewport{CenterLat: 48.1371, CenterLng: 11.5754, Zoom: 14, Width: 800, Height: 600}

	// The view center projects to the canvas middle.
	px, py := PixelForGeo(vp.CenterLat, vp.CenterLng, vp)
	assert.InDelta(t, 400, px, 1e-9)
	assert.InDelta(t, 300, py, 1e-9)

	// Pan offset shifts the projected point by the same amount.
	vp.PanX, vp.PanY = 25, -40
	px, py = PixelForGeo(vp.CenterLat, vp.CenterLng, vp)
	assert.InDelta(t, 425, px, 1e-9)
	assert.InDelta(t, 260, py, 1e-9)
}

func TestGeoForPixelRoundTrip(t *testing.T) {
	vp := Viewport{CenterLat: 19.0760, CenterLng: 72.8777, Zoom: 15, PanX: 12, PanY: 7, Width: 1024, Height: 768}
	p := GeoForPixel(100, 650, vp)
	px, py := PixelForGeo(p.Lat, p.Lon, vp)
	assert.InDelta(t, 100, px, 1e-6)
	assert.InDelta(t, 650, py, 1e-6)

	// Composition recovers the direct tile index.
	dx, dy := TileForGeo(p.Lat, p.Lon, vp.Zoom)
	wx, wy := WorldPixel(p.Lat, p.Lon, vp.Zoom)
	assert.Equal(t, dx, int(math.Floor(wx/TileSize)))
	assert.Equal(t, dy, int(math.Floor(wy/TileSize)))
}

func TestMetersPerPixel(t *testing.T) {
	// ~156km/px at z0 on the equator, halving per zoom level.
	assert.InDelta(t, 156543, MetersPerPixel(0, 0), 10)
	assert.InDelta(t, 156543.0/2, MetersPerPixel(0, 1), 5)
	// Shrinks with latitude.
	assert.Less(t, MetersPerPixel(60, 10), MetersPerPixel(0, 10))
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(0, 0, 3))
	assert.True(t, InRange(16383, 16383, 14))
	assert.False(t, InRange(-1, 0, 14))
	assert.False(t, InRange(0, 16384, 14))
	assert.False(t, InRange(1000000000, 0, 14))
}

func TestVisibleTilesClamped(t *testing.T) {
	// A small canvas at low zoom near the date line must stay in range.
	vp := Viewport{CenterLat: 0, CenterLng: 179.9, Zoom: 3, Width: 1024, Height: 1024}
	r := VisibleTiles(vp)
	limit := MaxTileIndex(vp.Zoom)
	assert.GreaterOrEqual(t, r.MinX, 0)
	assert.GreaterOrEqual(t, r.MinY, 0)
	assert.LessOrEqual(t, r.MaxX, limit)
	assert.LessOrEqual(t, r.MaxY, limit)
	assert.LessOrEqual(t, r.MinX, r.MaxX)
	assert.LessOrEqual(t, r.MinY, r.MaxY)
}

func TestVisibleTilesCoverCanvas(t *testing.T) {
	vp := Viewport{CenterLat: 48.1371, CenterLng: 11.5754, Zoom: 14, Width: 800, Height: 600}
	r := VisibleTiles(vp)

	// Every canvas corner must fall inside the returned range.
	for _, c := range [][2]float64{{0, 0}, {800, 0}, {0, 600}, {800, 600}} {
		p := GeoForPixel(c[0], c[1], vp)
		x, y := TileForGeo(p.Lat, p.Lon, vp.Zoom)
		assert.GreaterOrEqual(t, x, r.MinX)
		assert.LessOrEqual(t, x, r.MaxX)
		assert.GreaterOrEqual(t, y, r.MinY)
		assert.LessOrEqual(t, y, r.MaxY)
	}
}
