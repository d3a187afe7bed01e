package render

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"roadscout/pkg/geo"
	"roadscout/pkg/model"
	"roadscout/pkg/projection"
	"roadscout/pkg/sampler"
	"roadscout/pkg/tile"
)

const (
	maxAccuracyRingPx = 120
	pulseMaxRadiusPx  = 26
	markerRadiusPx    = 9
)

// Frame bundles everything one rendered map image depends on.
type Frame struct {
	Viewport   projection.Viewport
	Layer      tile.Layer
	Position   *sampler.Position
	Tracking   bool
	PulsePhase float64 // 0..1, drives the halo animation
	Route      *model.Route
	Markers    []model.Marker
}

// Renderer rasterizes map frames. Tiles it needs but does not have are
// requested from the cache and painted as placeholders until they load.
type Renderer struct {
	cache *tile.Cache
	face  font.Face
	small font.Face
}

// New creates a renderer drawing from the given tile cache.
func New(cache *tile.Cache) (*Renderer, error) {
	ft, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{Size: 13, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("building font face: %w", err)
	}
	small, err := opentype.NewFace(ft, &opentype.FaceOptions{Size: 10, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("building font face: %w", err)
	}
	return &Renderer{cache: cache, face: face, small: small}, nil
}

// Render draws one frame. The returned image is freshly allocated and
// safe to hand to another goroutine.
func (r *Renderer) Render(ctx context.Context, f Frame) (image.Image, error) {
	vp := f.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, fmt.Errorf("empty canvas %dx%d", vp.Width, vp.Height)
	}
	if !finiteViewport(vp) {
		return nil, fmt.Errorf("non-finite viewport center %f,%f", vp.CenterLat, vp.CenterLng)
	}

	dc := gg.NewContext(vp.Width, vp.Height)
	dc.SetHexColor("#dddddd")
	dc.Clear()

	r.drawTiles(ctx, dc, f)
	if f.Route != nil {
		r.drawRoute(dc, vp, f.Route)
	}
	r.drawMarkers(dc, f)
	if f.Position != nil {
		r.drawUser(dc, f)
	}
	return dc.Image(), nil
}

func (r *Renderer) drawTiles(ctx context.Context, dc *gg.Context, f Frame) {
	vp := f.Viewport
	rng := projection.VisibleTiles(vp)
	tlx, tly := projection.TopLeftWorld(vp)

	for x := rng.MinX; x <= rng.MaxX; x++ {
		for y := rng.MinY; y <= rng.MaxY; y++ {
			k := tile.Key{Layer: f.Layer, Zoom: vp.Zoom, X: x, Y: y}
			px := float64(x*projection.TileSize) - tlx
			py := float64(y*projection.TileSize) - tly

			r.cache.Request(ctx, k)
			if img, _, ok := r.cache.Get(k); ok {
				dc.DrawImage(img, int(math.Round(px)), int(math.Round(py)))
				continue
			}
			// Placeholder until the tile arrives.
			dc.SetHexColor("#e8e8e8")
			dc.DrawRectangle(px, py, projection.TileSize, projection.TileSize)
			dc.Fill()
			dc.SetHexColor("#cccccc")
			dc.SetLineWidth(1)
			dc.DrawRectangle(px, py, projection.TileSize, projection.TileSize)
			dc.Stroke()
		}
	}
}

func (r *Renderer) drawRoute(dc *gg.Context, vp projection.Viewport, route *model.Route) {
	if len(route.Line) < 2 {
		return
	}
	// Simplify in geographic space with a tolerance of about one pixel.
	tolerance := projection.MetersPerPixel(vp.CenterLat, vp.Zoom) / geo.MetersPerDegree
	line := simplify.DouglasPeucker(tolerance).Simplify(route.Line.Clone()).(orb.LineString)

	color := route.ColorHex
	if color == "" {
		color = "#2e64fe"
	}
	width := route.WidthPx
	if width <= 0 {
		width = 4
	}

	dc.NewSubPath()
	for i, pt := range line {
		x, y := projection.PixelForGeo(pt.Lat(), pt.Lon(), vp)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.SetHexColor(color)
	dc.SetLineWidth(width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.Stroke()
}

func (r *Renderer) drawMarkers(dc *gg.Context, f Frame) {
	vp := f.Viewport
	for _, m := range f.Markers {
		if !geo.Valid(m.Lat, m.Lon) {
			continue
		}
		x, y := projection.PixelForGeo(m.Lat, m.Lon, vp)
		if x < -50 || y < -50 || x > float64(vp.Width)+50 || y > float64(vp.Height)+50 {
			continue
		}

		// Drop shadow.
		dc.SetRGBA(0, 0, 0, 0.25)
		dc.DrawCircle(x+1.5, y+2, markerRadiusPx)
		dc.Fill()

		switch m.Category {
		case model.CategoryFuel:
			dc.SetHexColor("#e53935")
		case model.CategoryParking:
			dc.SetHexColor("#1e88e5")
		default:
			dc.SetHexColor("#757575")
		}
		dc.DrawCircle(x, y, markerRadiusPx)
		dc.Fill()
		dc.SetHexColor("#ffffff")
		dc.SetLineWidth(2)
		dc.DrawCircle(x, y, markerRadiusPx)
		dc.Stroke()

		if m.Label != "" {
			label := m.Label
			if f.Position != nil {
				d := geo.Distance(
					geo.Point{Lat: f.Position.Lat, Lon: f.Position.Lon},
					geo.Point{Lat: m.Lat, Lon: m.Lon})
				label = fmt.Sprintf("%s · %s", m.Label, formatDistance(d))
			}
			dc.SetFontFace(r.small)
			dc.SetRGBA(1, 1, 1, 0.85)
			w, h := dc.MeasureString(label)
			dc.DrawRectangle(x-w/2-3, y+markerRadiusPx+3, w+6, h+4)
			dc.Fill()
			dc.SetHexColor("#212121")
			dc.DrawStringAnchored(label, x, y+markerRadiusPx+7+h/2, 0.5, 0.3)
		}
	}
}

func (r *Renderer) drawUser(dc *gg.Context, f Frame) {
	vp := f.Viewport
	p := f.Position
	if !geo.Valid(p.Lat, p.Lon) {
		return
	}
	x, y := projection.PixelForGeo(p.Lat, p.Lon, vp)

	// Accuracy ring, capped so a cold fix cannot flood the screen.
	if p.AccuracyM > 0 {
		rad := p.AccuracyM / projection.MetersPerPixel(p.Lat, vp.Zoom)
		if rad > maxAccuracyRingPx {
			rad = maxAccuracyRingPx
		}
		dc.SetRGBA(0.18, 0.47, 0.96, 0.12)
		dc.DrawCircle(x, y, rad)
		dc.Fill()
		dc.SetRGBA(0.18, 0.47, 0.96, 0.35)
		dc.SetLineWidth(1)
		dc.DrawCircle(x, y, rad)
		dc.Stroke()
	}

	// Pulsing halo while tracking.
	if f.Tracking {
		phase := math.Mod(f.PulsePhase, 1)
		dc.SetRGBA(0.18, 0.47, 0.96, 0.4*(1-phase))
		dc.DrawCircle(x, y, 8+phase*(pulseMaxRadiusPx-8))
		dc.Fill()
	}

	// Heading wedge under the dot.
	if p.HeadingDeg != nil {
		dc.Push()
		dc.RotateAbout(gg.Radians(*p.HeadingDeg), x, y)
		dc.MoveTo(x, y-22)
		dc.LineTo(x-7, y-8)
		dc.LineTo(x+7, y-8)
		dc.ClosePath()
		dc.SetRGBA(0.18, 0.47, 0.96, 0.9)
		dc.Fill()
		dc.Pop()
	}

	dc.SetHexColor("#ffffff")
	dc.DrawCircle(x, y, 8)
	dc.Fill()
	dc.SetHexColor("#2e78f5")
	dc.DrawCircle(x, y, 6)
	dc.Fill()
}

func formatDistance(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%.0f m", m)
	}
	return fmt.Sprintf("%.1f km", m/1000)
}

func finiteViewport(vp projection.Viewport) bool {
	for _, v := range []float64{vp.CenterLat, vp.CenterLng, vp.PanX, vp.PanY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
