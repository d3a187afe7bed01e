// Package projection implements the spherical Web-Mercator transforms used by
// the map renderer and view controller. Everything here is pure and stateless;
// the render loop calls these at frame rate.
package projection

import (
	"math"

	"roadscout/pkg/geo"
)

const (
	// TileSize is the edge length of a raster tile in pixels.
	TileSize = 256

	// MinZoom and MaxZoom bound the interactive zoom range.
	MinZoom = 3
	MaxZoom = 18

	// maxMercatorLat is arctan(sinh(pi)); the projection is undefined beyond it.
	maxMercatorLat = 85.0511

	// earthCircumferenceM is the equatorial circumference, used for the
	// meters-per-pixel scale.
	earthCircumferenceM = 40075016.686
)

// Viewport is a read-only snapshot of the interactive map state plus the
// canvas dimensions. Produced by the view controller, consumed here and by
// the renderer.
type Viewport struct {
	CenterLat float64
	CenterLng float64
	Zoom      int
	PanX      float64
	PanY      float64
	Width     int
	Height    int
}

// TileRange is an inclusive range of tile indices at one zoom level.
type TileRange struct {
	MinX, MinY int
	MaxX, MaxY int
}

func clampLat(lat float64) float64 {
	if lat > maxMercatorLat {
		return maxMercatorLat
	}
	if lat < -maxMercatorLat {
		return -maxMercatorLat
	}
	return lat
}

// TileForGeo converts a geographic coordinate to the tile index containing it.
func TileForGeo(lat, lng float64, zoom int) (int, int) {
	lat = clampLat(lat)
	latRad := lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	x := int(math.Floor((lng + 180.0) / 360.0 * n))
	y := int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n))
	max := MaxTileIndex(zoom)
	if x < 0 {
		x = 0
	} else if x > max {
		x = max
	}
	if y < 0 {
		y = 0
	} else if y > max {
		y = max
	}
	return x, y
}

// GeoForTile returns the geographic coordinate of the tile's north-west corner.
func GeoForTile(x, y, zoom int) geo.Point {
	n := math.Pow(2, float64(zoom))
	lon := float64(x)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return geo.Point{Lat: latRad * 180.0 / math.Pi, Lon: lon}
}

// WorldPixel converts a geographic coordinate to absolute world-pixel
// coordinates at the given zoom.
func WorldPixel(lat, lng float64, zoom int) (float64, float64) {
	lat = clampLat(lat)
	n := math.Pow(2, float64(zoom))
	latRad := lat * math.Pi / 180.0
	wx := TileSize * n * (lng + 180) / 360
	wy := TileSize * n * (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return wx, wy
}

// GeoForWorldPixel is the inverse of WorldPixel.
func GeoForWorldPixel(wx, wy float64, zoom int) geo.Point {
	n := math.Pow(2, float64(zoom))
	lng := (wx/(TileSize*n))*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*wy/(TileSize*n))))
	return geo.Point{Lat: latRad * 180 / math.Pi, Lon: lng}
}

// TopLeftWorld returns the world-pixel coordinate of the canvas's top-left
// corner for the given viewport, accounting for the pan offset.
func TopLeftWorld(vp Viewport) (float64, float64) {
	cwx, cwy := WorldPixel(vp.CenterLat, vp.CenterLng, vp.Zoom)
	return cwx - float64(vp.Width)/2 - vp.PanX, cwy - float64(vp.Height)/2 - vp.PanY
}

// PixelForGeo converts a geographic coordinate to canvas-relative pixel
// coordinates for the given viewport, including the current pan offset.
func PixelForGeo(lat, lng float64, vp Viewport) (float64, float64) {
	wx, wy := WorldPixel(lat, lng, vp.Zoom)
	tlx, tly := TopLeftWorld(vp)
	return wx - tlx, wy - tly
}

// GeoForPixel converts a canvas-relative pixel coordinate back to geographic
// coordinates for the given viewport.
func GeoForPixel(px, py float64, vp Viewport) geo.Point {
	tlx, tly := TopLeftWorld(vp)
	return GeoForWorldPixel(tlx+px, tly+py, vp.Zoom)
}

// MetersPerPixel returns the ground resolution at a latitude and zoom level.
func MetersPerPixel(lat float64, zoom int) float64 {
	return earthCircumferenceM * math.Cos(clampLat(lat)*math.Pi/180) /
		(math.Pow(2, float64(zoom)) * TileSize)
}

// MaxTileIndex returns the largest valid tile index at a zoom level.
func MaxTileIndex(zoom int) int {
	return int(math.Pow(2, float64(zoom))) - 1
}

// InRange reports whether a tile index is valid at the given zoom.
func InRange(x, y, zoom int) bool {
	if zoom < 0 {
		return false
	}
	max := MaxTileIndex(zoom)
	return x >= 0 && x <= max && y >= 0 && y <= max
}

// VisibleTiles computes the tile range covering the viewport's canvas, with a
// one-tile border so panning never exposes an unrequested edge. The range is
// clamped to the zoom level's valid indices.
func VisibleTiles(vp Viewport) TileRange {
	tlx, tly := TopLeftWorld(vp)

	minX := int(math.Floor(tlx/TileSize)) - 1
	minY := int(math.Floor(tly/TileSize)) - 1
	maxX := int(math.Floor((tlx+float64(vp.Width))/TileSize)) + 1
	maxY := int(math.Floor((tly+float64(vp.Height))/TileSize)) + 1

	limit := MaxTileIndex(vp.Zoom)
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > limit {
		maxX = limit
	}
	if maxY > limit {
		maxY = limit
	}
	return TileRange{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}
