package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/pkg/config"
	"roadscout/pkg/model"
	"roadscout/pkg/places"
	"roadscout/pkg/projection"
	"roadscout/pkg/render"
	"roadscout/pkg/sampler"
	"roadscout/pkg/tile"
	"roadscout/pkg/tracker"
	"roadscout/pkg/view"
)

type stubProvider struct {
	fn func(sampler.Position)
}

func (p *stubProvider) Current(ctx context.Context, opts sampler.Options) (sampler.Position, error) {
	return sampler.Position{}, sampler.ErrPositionUnavailable
}

func (p *stubProvider) Watch(opts sampler.Options, fn func(sampler.Position), errFn func(error)) (sampler.Subscription, error) {
	p.fn = fn
	return stubSub{}, nil
}

type stubSub struct{}

func (stubSub) Stop() {}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, k tile.Key) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 256, 256)), nil
}

type testEnv struct {
	srv      *httptest.Server
	provider *stubProvider
	smp      *sampler.Sampler
	vc       *view.Controller
	markers  []model.Marker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{provider: &stubProvider{}}

	env.smp = sampler.New(env.provider)
	require.NoError(t, env.smp.Start(context.Background(), sampler.Config{MinDisplacementM: 2}))
	t.Cleanup(env.smp.Stop)

	cache := tile.NewCache(stubFetcher{}, tracker.New(), time.Minute)
	env.vc = view.New(19.0760, 72.8777, 15, tile.LayerStreet)
	env.vc.SetCanvasSize(400, 300)

	renderer, err := render.New(cache)
	require.NoError(t, err)
	loop := render.NewLoop(renderer, func() render.Frame {
		return render.Frame{Viewport: env.vc.Viewport(), Layer: env.vc.Layer()}
	}, 30*time.Millisecond)

	cfg := config.DefaultConfig()
	tel := NewTelemetryHandler(env.smp, nil, env.vc)
	maps := NewMapHandler(env.vc, loop, func() []model.Marker { return env.markers })
	trk := NewTrackingHandler(env.smp, sampler.Config{MinDisplacementM: 2})
	pl := NewPlacesHandler(places.NewIndex(), env.smp, cfg.Places)
	stats := NewStatsHandler(tracker.New(), cache, loop)
	cfgH := NewConfigHandler(cfg)
	ws := NewWSHandler(tel, 10*time.Millisecond)

	httpSrv := NewServer("127.0.0.1:0", tel, maps, trk, pl, stats, cfgH, ws, func() {})
	env.srv = httptest.NewServer(httpSrv.Handler)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/version")
	v := decode[map[string]string](t, resp)
	assert.NotEmpty(t, v["version"])
}

func TestTelemetry(t *testing.T) {
	env := newTestEnv(t)
	speed := 12.0
	env.provider.fn(sampler.Position{
		Lat: 19.0760, Lon: 72.8777, AccuracyM: 5, SpeedMS: &speed, Timestamp: time.Now(),
	})

	resp := env.get(t, "/api/telemetry")
	tel := decode[TelemetryResponse](t, resp)
	assert.True(t, tel.Tracking)
	require.NotNil(t, tel.Position)
	assert.Equal(t, 19.0760, tel.Position.Lat)
	assert.InDelta(t, 43.2, tel.SpeedKmh, 0.01)
	assert.Equal(t, "gps", tel.SpeedSource)
	assert.True(t, tel.Following)
	assert.Equal(t, tile.LayerStreet, tel.Layer)
}

func TestTrackingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.provider.fn(sampler.Position{Lat: 19.0760, Lon: 72.8777, AccuracyM: 5, Timestamp: time.Now()})
	env.provider.fn(sampler.Position{Lat: 19.0770, Lon: 72.8777, AccuracyM: 5, Timestamp: time.Now()})

	resp := env.get(t, "/api/tracking/history")
	hist := decode[map[string][]sampler.Position](t, resp)
	assert.Len(t, hist["history"], 2)

	resp = env.post(t, "/api/tracking/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/api/tracking/reset", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/tracking/history")
	hist = decode[map[string][]sampler.Position](t, resp)
	assert.Empty(t, hist["history"])

	resp = env.post(t, "/api/tracking/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestMapControls(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/map/pan", map[string]float64{"dx": 25, "dy": -10})
	out := decode[map[string]bool](t, resp)
	assert.False(t, out["following"], "panning must suspend follow mode")
	assert.Equal(t, 25.0, env.vc.Viewport().PanX)

	resp = env.post(t, "/api/map/zoom", map[string]int{"delta": 30})
	z := decode[map[string]int](t, resp)
	assert.Equal(t, projection.MaxZoom, z["zoom"])

	resp = env.post(t, "/api/map/zoom", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/api/map/recenter", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.True(t, env.vc.Following())

	resp = env.post(t, "/api/map/layer", map[string]string{"layer": "satellite"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, tile.LayerSatellite, env.vc.Layer())

	resp = env.post(t, "/api/map/layer", map[string]string{"layer": "terrain"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/api/map/size", map[string]int{"width": 0, "height": 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestMapTap(t *testing.T) {
	env := newTestEnv(t)
	vp := env.vc.Viewport()
	p := projection.GeoForPixel(200, 150, vp)
	env.markers = []model.Marker{{ID: "fuel-abc", Lat: p.Lat, Lon: p.Lon, Category: model.CategoryFuel}}

	resp := env.post(t, "/api/map/tap", map[string]any{"x": 200.0, "y": 150.0, "touch": true})
	m := decode[model.Marker](t, resp)
	assert.Equal(t, "fuel-abc", m.ID)

	resp = env.post(t, "/api/map/tap", map[string]any{"x": 10.0, "y": 10.0})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestMapFrameIsPNG(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/map/frame")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
}

func TestMapFrameCustomSize(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/map/frame?w=200&h=100")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestPlacesGeoJSON(t *testing.T) {
	env := newTestEnv(t)
	env.provider.fn(sampler.Position{Lat: 19.0760, Lon: 72.8777, AccuracyM: 5, Timestamp: time.Now()})

	resp := env.get(t, "/api/places?limit=5")
	fc := decode[map[string]any](t, resp)
	assert.Equal(t, "FeatureCollection", fc["type"])
	features := fc["features"].([]any)
	assert.Len(t, features, 5)
	first := features[0].(map[string]any)
	props := first["properties"].(map[string]any)
	assert.Contains(t, []any{"fuel", "parking"}, props["category"])
	assert.NotEmpty(t, props["label"])
}

func TestPlacesValidation(t *testing.T) {
	env := newTestEnv(t)

	// No fix, no explicit coordinates.
	resp := env.get(t, "/api/places")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/places?lat=91&lon=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/places?lat=19.0760&lon=72.8777&radius=-5")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/places?lat=19.0760&lon=72.8777")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/stats")
	st := decode[StatsResponse](t, resp)
	assert.GreaterOrEqual(t, st.UptimeSec, int64(0))
	assert.NotNil(t, st.Scopes)
}

func TestConfigReadonly(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/config")
	cfg := decode[map[string]any](t, resp)
	assert.NotEmpty(t, cfg)
}
