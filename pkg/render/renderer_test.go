package render

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/pkg/model"
	"roadscout/pkg/projection"
	"roadscout/pkg/sampler"
	"roadscout/pkg/tile"
	"roadscout/pkg/tracker"
)

// solidFetcher serves uniformly colored tiles.
type solidFetcher struct {
	c     color.RGBA
	delay time.Duration
}

func (f *solidFetcher) Fetch(ctx context.Context, k tile.Key) (image.Image, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.SetRGBA(x, y, f.c)
		}
	}
	return img, nil
}

func testViewport() projection.Viewport {
	return projection.Viewport{
		CenterLat: 19.0760, CenterLng: 72.8777, Zoom: 14, Width: 400, Height: 300,
	}
}

func newTestRenderer(t *testing.T, f tile.Fetcher) (*Renderer, *tile.Cache) {
	t.Helper()
	c := tile.NewCache(f, tracker.New(), time.Minute)
	r, err := New(c)
	require.NoError(t, err)
	return r, c
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestRenderCanvasSize(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{A: 255}})

	img, err := r.Render(context.Background(), Frame{Viewport: testViewport(), Layer: tile.LayerStreet})
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestRenderPaintsLoadedTiles(t *testing.T) {
	green := color.RGBA{G: 200, A: 255}
	r, c := newTestRenderer(t, &solidFetcher{c: green, delay: 30 * time.Millisecond})
	f := Frame{Viewport: testViewport(), Layer: tile.LayerStreet}

	// First pass requests the tiles and paints placeholders.
	img, err := r.Render(context.Background(), f)
	require.NoError(t, err)
	assert.NotEqual(t, green, rgbaAt(img, 200, 150))

	rng := projection.VisibleTiles(f.Viewport)
	require.Eventually(t, func() bool {
		k := tile.Key{Layer: tile.LayerStreet, Zoom: 14, X: rng.MinX, Y: rng.MinY}
		_, _, ok := c.Get(k)
		return ok
	}, time.Second, time.Millisecond)

	img, err = r.Render(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, green, rgbaAt(img, 200, 150))
}

func TestRenderRejectsBadViewport(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{})

	_, err := r.Render(context.Background(), Frame{Viewport: projection.Viewport{Width: 0, Height: 100}})
	assert.Error(t, err)

	vp := testViewport()
	vp.CenterLat = math.NaN()
	_, err = r.Render(context.Background(), Frame{Viewport: vp})
	assert.Error(t, err)
}

func TestRenderMarker(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{R: 255, G: 255, B: 255, A: 255}})
	vp := testViewport()
	pos := projection.GeoForPixel(200, 150, vp)

	img, err := r.Render(context.Background(), Frame{
		Viewport: vp,
		Layer:    tile.LayerStreet,
		Markers: []model.Marker{
			{ID: "fuel-x", Lat: pos.Lat, Lon: pos.Lon, Category: model.CategoryFuel, Label: "Shell"},
		},
	})
	require.NoError(t, err)

	px := rgbaAt(img, 200, 150)
	assert.Greater(t, px.R, uint8(150), "fuel marker should paint red at its anchor")
	assert.Less(t, px.G, uint8(120))
}

func TestRenderUserAndRoute(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{R: 240, G: 240, B: 240, A: 255}})
	vp := testViewport()
	center := projection.GeoForPixel(200, 150, vp)
	east := projection.GeoForPixel(380, 150, vp)
	heading := 90.0
	pos := &sampler.Position{Lat: center.Lat, Lon: center.Lon, AccuracyM: 50, HeadingDeg: &heading}

	img, err := r.Render(context.Background(), Frame{
		Viewport:   vp,
		Layer:      tile.LayerStreet,
		Position:   pos,
		Tracking:   true,
		PulsePhase: 0.5,
		Route: &model.Route{Line: orb.LineString{
			{center.Lon, center.Lat}, {east.Lon, east.Lat},
		}},
	})
	require.NoError(t, err)

	// The user dot is blue at the fix.
	px := rgbaAt(img, 200, 150)
	assert.Greater(t, px.B, uint8(150))

	// The route stroke runs east of the dot.
	px = rgbaAt(img, 300, 150)
	assert.Greater(t, px.B, uint8(120))
	assert.Less(t, px.R, uint8(150))
}

func TestRenderHugeAccuracyCapped(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{R: 255, G: 255, B: 255, A: 255}})
	vp := testViewport()
	center := projection.GeoForPixel(200, 150, vp)
	pos := &sampler.Position{Lat: center.Lat, Lon: center.Lon, AccuracyM: 500000}

	img, err := r.Render(context.Background(), Frame{Viewport: vp, Layer: tile.LayerStreet, Position: pos})
	require.NoError(t, err)

	// Capped ring: a corner 250px out stays untinted.
	px := rgbaAt(img, 5, 5)
	assert.Equal(t, px.R, px.B, "accuracy ring must not cover the whole canvas")
}

func TestLoopGateAndInvalidate(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{A: 255}})
	tracking := false
	loop := NewLoop(r, func() Frame {
		return Frame{Viewport: testViewport(), Layer: tile.LayerStreet, Tracking: tracking}
	}, 5*time.Millisecond)

	loop.Start(context.Background())
	defer loop.Stop()

	// The initial invalidate produces a first frame, then the loop idles.
	require.Eventually(t, func() bool { return loop.FrameCount() >= 1 }, time.Second, time.Millisecond)
	n := loop.FrameCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, loop.FrameCount(), "idle loop must not render")

	loop.Invalidate()
	require.Eventually(t, func() bool { return loop.FrameCount() > n }, time.Second, time.Millisecond)
	assert.NotNil(t, loop.Latest())
}

func TestLoopRendersWhileTracking(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{A: 255}})
	loop := NewLoop(r, func() Frame {
		return Frame{Viewport: testViewport(), Layer: tile.LayerStreet, Tracking: true}
	}, 5*time.Millisecond)

	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return loop.FrameCount() >= 5 }, time.Second, time.Millisecond)
}

func TestLoopStopIsSynchronous(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{A: 255}})
	loop := NewLoop(r, func() Frame {
		return Frame{Viewport: testViewport(), Layer: tile.LayerStreet, Tracking: true}
	}, time.Millisecond)

	loop.Start(context.Background())
	loop.Stop()
	n := loop.FrameCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, loop.FrameCount())
	loop.Stop() // second stop is a no-op
}

func TestRenderOnce(t *testing.T) {
	r, _ := newTestRenderer(t, &solidFetcher{c: color.RGBA{A: 255}})
	loop := NewLoop(r, func() Frame {
		return Frame{Viewport: testViewport(), Layer: tile.LayerStreet}
	}, time.Second)

	img, err := loop.RenderOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.Equal(t, img, loop.Latest())
}
