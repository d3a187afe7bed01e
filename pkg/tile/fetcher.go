package tile

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	// Tile servers answer with PNG (street) or JPEG (satellite).
	_ "image/jpeg"
	_ "image/png"

	"roadscout/pkg/config"
	"roadscout/pkg/request"
)

// HTTPFetcher downloads tiles over HTTP, spreading load across the
// configured mirrors of each layer.
type HTTPFetcher struct {
	client *request.Client
	cfg    config.TilesConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewHTTPFetcher creates a fetcher using the shared request client.
func NewHTTPFetcher(c *request.Client, cfg config.TilesConfig, seed int64) *HTTPFetcher {
	return &HTTPFetcher{
		client: c,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Fetch downloads and decodes one tile.
func (f *HTTPFetcher) Fetch(ctx context.Context, k Key) (image.Image, error) {
	u, err := f.urlFor(k)
	if err != nil {
		return nil, err
	}
	body, err := f.client.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching tile %d/%d/%d: %w", k.Zoom, k.X, k.Y, err)
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decoding tile %d/%d/%d: %w", k.Zoom, k.X, k.Y, err)
	}
	return img, nil
}

func (f *HTTPFetcher) urlFor(k Key) (string, error) {
	var mirrors []string
	switch k.Layer {
	case LayerStreet:
		mirrors = f.cfg.StreetMirrors
	case LayerSatellite:
		mirrors = f.cfg.SatelliteMirrors
	default:
		return "", fmt.Errorf("unknown tile layer %q", k.Layer)
	}
	if len(mirrors) == 0 {
		return "", fmt.Errorf("no mirrors configured for layer %q", k.Layer)
	}

	f.mu.Lock()
	tmpl := mirrors[f.rng.Intn(len(mirrors))]
	f.mu.Unlock()

	r := strings.NewReplacer(
		"{z}", strconv.Itoa(k.Zoom),
		"{x}", strconv.Itoa(k.X),
		"{y}", strconv.Itoa(k.Y),
	)
	return r.Replace(tmpl), nil
}
