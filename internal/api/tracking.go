package api

import (
	"context"
	"net/http"

	"roadscout/pkg/sampler"
)

// TrackingHandler controls the location sampler lifecycle.
type TrackingHandler struct {
	sampler *sampler.Sampler
	cfg     sampler.Config
}

func NewTrackingHandler(s *sampler.Sampler, cfg sampler.Config) *TrackingHandler {
	return &TrackingHandler{sampler: s, cfg: cfg}
}

func (h *TrackingHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.sampler.Start(context.Background(), h.cfg); err != nil {
		writeError(w, http.StatusConflict, sampler.Message(err))
		return
	}
	writeJSON(w, map[string]bool{"tracking": true})
}

func (h *TrackingHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.sampler.Stop()
	writeJSON(w, map[string]bool{"tracking": false})
}

// HandleReset clears the accumulated track and statistics. Tracking state
// is untouched: a running sampler simply starts a fresh track.
func (h *TrackingHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.sampler.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackingHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"history": h.sampler.History()})
}
