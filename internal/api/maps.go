package api

import (
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"roadscout/pkg/model"
	"roadscout/pkg/render"
	"roadscout/pkg/tile"
	"roadscout/pkg/view"
)

// MarkerSource supplies the markers currently on screen, for hit testing.
type MarkerSource func() []model.Marker

// MapHandler exposes the rendered map and the view controls.
type MapHandler struct {
	view    *view.Controller
	loop    *render.Loop
	markers MarkerSource
}

func NewMapHandler(v *view.Controller, loop *render.Loop, markers MarkerSource) *MapHandler {
	return &MapHandler{view: v, loop: loop, markers: markers}
}

// HandleFrame serves the latest rendered frame as PNG, rendering one on
// demand when the loop has not produced any yet. Optional w/h query
// parameters render a one-off frame at that size.
func (h *MapHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	var img image.Image
	if fw, fh, ok := frameSize(r); ok {
		var err error
		img, err = h.loop.RenderSized(r.Context(), fw, fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "render failed: "+err.Error())
			return
		}
	} else {
		img = h.loop.Latest()
	}
	if img == nil {
		var err error
		img, err = h.loop.RenderOnce(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "no frame available: "+err.Error())
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode frame", "error", err)
	}
}

func (h *MapHandler) HandlePan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.view.Pan(req.DX, req.DY)
	writeJSON(w, map[string]bool{"following": h.view.Following()})
}

func (h *MapHandler) HandleZoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Zoom  *int `json:"zoom"`
		Delta int  `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.Zoom != nil:
		h.view.SetZoom(*req.Zoom)
	case req.Delta != 0:
		h.view.SetZoom(h.view.Zoom() + req.Delta)
	default:
		writeError(w, http.StatusBadRequest, "zoom or delta required")
		return
	}
	writeJSON(w, map[string]int{"zoom": h.view.Zoom()})
}

func (h *MapHandler) HandleRecenter(w http.ResponseWriter, r *http.Request) {
	h.view.Recenter()
	w.WriteHeader(http.StatusNoContent)
}

func (h *MapHandler) HandleLayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Layer string `json:"layer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	switch tile.Layer(req.Layer) {
	case tile.LayerStreet, tile.LayerSatellite:
		h.view.SetLayer(tile.Layer(req.Layer))
	default:
		writeError(w, http.StatusBadRequest, "layer must be street or satellite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MapHandler) HandleSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	h.view.SetCanvasSize(req.Width, req.Height)
	w.WriteHeader(http.StatusNoContent)
}

func frameSize(r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	if q.Get("w") == "" || q.Get("h") == "" {
		return 0, 0, false
	}
	fw, errW := strconv.Atoi(q.Get("w"))
	fh, errH := strconv.Atoi(q.Get("h"))
	if errW != nil || errH != nil || fw <= 0 || fh <= 0 {
		return 0, 0, false
	}
	return fw, fh, true
}

// HandleTap runs a marker hit test at the tapped point. Touch taps get a
// larger target than pointer clicks.
func (h *MapHandler) HandleTap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Touch bool    `json:"touch"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	m, ok := h.view.HitTest(req.X, req.Y, h.markers(), req.Touch)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, m)
}
