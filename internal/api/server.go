package api

import (
	"log/slog"
	"net/http"
	"time"

	"roadscout/pkg/version"
)

// NewServer creates and configures the HTTP server. It accepts handlers
// for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, tel *TelemetryHandler, maps *MapHandler, trk *TrackingHandler, pl *PlacesHandler, stats *StatsHandler, cfg *ConfigHandler, ws *WSHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and Version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Telemetry
	mux.HandleFunc("GET /api/telemetry", tel.Handle)

	// 3. Tracking Control
	mux.HandleFunc("POST /api/tracking/start", trk.HandleStart)
	mux.HandleFunc("POST /api/tracking/stop", trk.HandleStop)
	mux.HandleFunc("POST /api/tracking/reset", trk.HandleReset)
	mux.HandleFunc("GET /api/tracking/history", trk.HandleHistory)

	// 4. Map View
	mux.HandleFunc("GET /api/map/frame", maps.HandleFrame)
	mux.HandleFunc("POST /api/map/pan", maps.HandlePan)
	mux.HandleFunc("POST /api/map/zoom", maps.HandleZoom)
	mux.HandleFunc("POST /api/map/recenter", maps.HandleRecenter)
	mux.HandleFunc("POST /api/map/layer", maps.HandleLayer)
	mux.HandleFunc("POST /api/map/size", maps.HandleSize)
	mux.HandleFunc("POST /api/map/tap", maps.HandleTap)

	// 5. Nearby Places
	mux.HandleFunc("GET /api/places", pl.Handle)

	// 6. Stats
	mux.Handle("GET /api/stats", stats)

	// 7. Config
	mux.HandleFunc("GET /api/config", cfg.Handle)

	// 8. Live push
	if ws != nil {
		mux.HandleFunc("GET /api/telemetry/ws", ws.Handle)
	}

	// 9. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": version.Version})
}
