package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"roadscout/internal/api"
	"roadscout/pkg/config"
	"roadscout/pkg/logging"
	"roadscout/pkg/model"
	"roadscout/pkg/places"
	"roadscout/pkg/probe"
	"roadscout/pkg/render"
	"roadscout/pkg/request"
	"roadscout/pkg/sampler"
	"roadscout/pkg/tile"
	"roadscout/pkg/tracker"
	"roadscout/pkg/vehicle"
	"roadscout/pkg/version"
	"roadscout/pkg/view"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/roadscout.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/roadscout.yaml")
		return
	}

	if err := run(context.Background(), "configs/roadscout.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Optional .env for local overrides; absence is not an error.
	_ = godotenv.Load()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("RoadScout Started", "version", version.Version)

	tr := tracker.New()
	reqClient := request.New(request.Config{
		Retries:        appCfg.Request.Retries,
		Timeout:        appCfg.Request.Timeout.Std(),
		WorkersPerHost: appCfg.Request.WorkersPerHost,
		BaseDelay:      appCfg.Request.Backoff.BaseDelay.Std(),
		MaxDelay:       appCfg.Request.Backoff.MaxDelay.Std(),
	}, tr)

	// Tiles
	fetcher := tile.NewHTTPFetcher(reqClient, appCfg.Tiles, time.Now().UnixNano())
	cache := tile.NewCache(fetcher, tr, appCfg.Tiles.FailedRetryAfter.Std())

	// Location
	provider, err := buildProvider(appCfg)
	if err != nil {
		return err
	}
	smp := sampler.New(provider)
	samplerCfg := sampler.Config{
		HighAccuracy:     appCfg.Location.HighAccuracy,
		Timeout:          appCfg.Location.Timeout.Std(),
		MaxSampleAge:     appCfg.Location.MaxSampleAge.Std(),
		SampleInterval:   appCfg.Location.SampleInterval.Std(),
		MinDisplacementM: appCfg.Location.MinDisplacement.Meters(),
		AccuracyGateM:    appCfg.Location.AccuracyGate.Meters(),
	}
	if err := smp.Start(ctx, samplerCfg); err != nil {
		slog.Warn("Tracking unavailable at startup", "error", err, "message", sampler.Message(err))
	}
	defer smp.Stop()

	// View
	vc := view.New(appCfg.Sim.StartLat, appCfg.Sim.StartLon, appCfg.Map.InitialZoom, tile.Layer(appCfg.Map.DefaultLayer))
	vc.SetCanvasSize(appCfg.Map.CanvasWidth, appCfg.Map.CanvasHeight)
	vc.OnLayerChange(func(tile.Layer) { cache.Clear() })
	smp.OnUpdate(func(p sampler.Position) { vc.HandlePosition(p.Lat, p.Lon) })

	// Places
	placeIndex := places.NewIndex()
	currentMarkers := func() []model.Marker {
		pos, ok := smp.Current()
		if !ok {
			return nil
		}
		markers, err := placeIndex.Nearby(pos.Lat, pos.Lon, appCfg.Places.Radius.Meters(), appCfg.Places.MaxResults)
		if err != nil {
			slog.Debug("Nearby lookup failed", "error", err)
			return nil
		}
		return markers
	}

	// Renderer
	renderer, err := render.New(cache)
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}
	loop := render.NewLoop(renderer, func() render.Frame {
		f := render.Frame{
			Viewport: vc.Viewport(),
			Layer:    vc.Layer(),
			Tracking: smp.Tracking(),
			Markers:  currentMarkers(),
		}
		if pos, ok := smp.Current(); ok {
			p := pos
			f.Position = &p
		}
		return f
	}, appCfg.Map.FrameInterval.Std())
	cache.OnLoad(loop.Invalidate)
	vc.OnChange(loop.Invalidate)
	loop.Start(ctx)
	defer loop.Stop()

	// Startup probes: a dead street mirror is fatal, satellite is optional.
	probes := []probe.Probe{
		probe.TileMirror("street tiles", appCfg.Tiles.StreetMirrors[0], reqClient, true),
	}
	if len(appCfg.Tiles.SatelliteMirrors) > 0 {
		probes = append(probes, probe.TileMirror("satellite tiles", appCfg.Tiles.SatelliteMirrors[0], reqClient, false))
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Vehicle data
	var vch *vehicle.Channel
	if appCfg.Vehicle.Enabled {
		vch = vehicle.New(vehicle.Config{
			URL:         appCfg.Vehicle.URL,
			MaxAttempts: appCfg.Vehicle.MaxAttempts,
			BaseDelay:   appCfg.Vehicle.BaseDelay.Std(),
			MaxDelay:    appCfg.Vehicle.MaxDelay.Std(),
			Staleness:   appCfg.Vehicle.Staleness.Std(),
		})
		vch.Start(ctx)
		defer vch.Stop()
	}

	return runServer(ctx, appCfg, smp, samplerCfg, vch, vc, loop, cache, placeIndex, tr, currentMarkers)
}

func buildProvider(cfg *config.Config) (sampler.Provider, error) {
	switch cfg.Location.Provider {
	case "sim", "":
		return sampler.NewSimProvider(sampler.SimConfig{
			StartLat:  cfg.Sim.StartLat,
			StartLon:  cfg.Sim.StartLon,
			SpeedKmh:  cfg.Sim.SpeedKmh,
			Tick:      cfg.Sim.Tick.Std(),
			AccuracyM: cfg.Sim.AccuracyM,
			Seed:      cfg.Sim.Seed,
		}), nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", cfg.Location.Provider)
	}
}

func runServer(ctx context.Context, cfg *config.Config, smp *sampler.Sampler, samplerCfg sampler.Config, vch *vehicle.Channel, vc *view.Controller, loop *render.Loop, cache *tile.Cache, placeIndex *places.Index, tr *tracker.Tracker, markers api.MarkerSource) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	telH := api.NewTelemetryHandler(smp, vch, vc)
	srv := api.NewServer(cfg.Server.Address,
		telH,
		api.NewMapHandler(vc, loop, markers),
		api.NewTrackingHandler(smp, samplerCfg),
		api.NewPlacesHandler(placeIndex, smp, cfg.Places),
		api.NewStatsHandler(tr, cache, loop),
		api.NewConfigHandler(cfg),
		api.NewWSHandler(telH, cfg.Server.TelemetryInterval.Std()),
		shutdownFunc,
	)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
