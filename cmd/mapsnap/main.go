// mapsnap renders a single map frame to a PNG file. Handy for checking
// tile sources and render output without running the full dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fogleman/gg"

	"roadscout/pkg/config"
	"roadscout/pkg/projection"
	"roadscout/pkg/render"
	"roadscout/pkg/request"
	"roadscout/pkg/tile"
	"roadscout/pkg/tracker"
)

var (
	lat     = flag.Float64("lat", 19.0760, "center latitude")
	lon     = flag.Float64("lon", 72.8777, "center longitude")
	zoom    = flag.Int("zoom", 15, "zoom level")
	width   = flag.Int("w", 1024, "image width")
	height  = flag.Int("h", 768, "image height")
	layer   = flag.String("layer", "street", "tile layer (street or satellite)")
	out     = flag.String("o", "map.png", "output file")
	timeout = flag.Duration("timeout", 30*time.Second, "tile download timeout")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	l := tile.Layer(*layer)
	if l != tile.LayerStreet && l != tile.LayerSatellite {
		return fmt.Errorf("invalid layer %q", *layer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := config.DefaultConfig()
	tr := tracker.New()
	client := request.New(request.Config{Retries: 3, Timeout: 10 * time.Second}, tr)
	fetcher := tile.NewHTTPFetcher(client, cfg.Tiles, time.Now().UnixNano())
	cache := tile.NewCache(fetcher, tr, cfg.Tiles.FailedRetryAfter.Std())

	renderer, err := render.New(cache)
	if err != nil {
		return err
	}

	vp := projection.Viewport{
		CenterLat: *lat, CenterLng: *lon, Zoom: *zoom,
		Width: *width, Height: *height,
	}
	frame := render.Frame{Viewport: vp, Layer: l}

	// First render kicks off the downloads; keep repainting until every
	// visible tile settled (loaded or failed) or the deadline passes.
	img, err := renderer.Render(ctx, frame)
	if err != nil {
		return err
	}
	for !settled(cache, l, vp) {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Warning: timed out waiting for tiles, saving partial frame")
		case <-time.After(100 * time.Millisecond):
			if img, err = renderer.Render(context.Background(), frame); err != nil {
				return err
			}
			continue
		}
		break
	}

	if err := gg.SavePNG(*out, img); err != nil {
		return fmt.Errorf("saving %s: %w", *out, err)
	}
	fmt.Printf("Saved %s (%dx%d, %s, z%d)\n", *out, *width, *height, l, *zoom)
	return nil
}

func settled(cache *tile.Cache, l tile.Layer, vp projection.Viewport) bool {
	r := projection.VisibleTiles(vp)
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			_, state, _ := cache.Get(tile.Key{Layer: l, Zoom: vp.Zoom, X: x, Y: y})
			if state == tile.StatePending {
				return false
			}
		}
	}
	return true
}
