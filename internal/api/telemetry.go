package api

import (
	"net/http"

	"roadscout/pkg/model"
	"roadscout/pkg/sampler"
	"roadscout/pkg/tile"
	"roadscout/pkg/vehicle"
	"roadscout/pkg/view"
)

// TelemetryHandler serves the combined position, motion and vehicle state
// the dashboard polls.
type TelemetryHandler struct {
	sampler *sampler.Sampler
	vehicle *vehicle.Channel
	view    *view.Controller
}

func NewTelemetryHandler(s *sampler.Sampler, vc *vehicle.Channel, v *view.Controller) *TelemetryHandler {
	return &TelemetryHandler{sampler: s, vehicle: vc, view: v}
}

type TelemetryResponse struct {
	Tracking       bool               `json:"tracking"`
	Position       *sampler.Position  `json:"position,omitempty"`
	Stats          model.MotionStats  `json:"stats"`
	SpeedKmh       float64            `json:"speedKmh"`
	SpeedSource    string             `json:"speedSource"`
	Error          string             `json:"error,omitempty"`
	ErrorRetryable bool               `json:"errorRetryable,omitempty"`
	Vehicle        *model.VehicleData `json:"vehicle,omitempty"`
	VehicleState   string             `json:"vehicleState"`
	Following      bool               `json:"following"`
	Zoom           int                `json:"zoom"`
	Layer          tile.Layer         `json:"layer"`
}

func (h *TelemetryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.build())
}

func (h *TelemetryHandler) build() TelemetryResponse {
	resp := TelemetryResponse{
		Tracking:     h.sampler.Tracking(),
		Stats:        h.sampler.Stats(),
		Following:    h.view.Following(),
		Zoom:         h.view.Zoom(),
		Layer:        h.view.Layer(),
		VehicleState: vehicle.StateIdle.String(),
	}

	if pos, ok := h.sampler.Current(); ok {
		p := pos
		resp.Position = &p
		if p.SpeedMS != nil {
			resp.SpeedKmh = *p.SpeedMS * 3.6
			resp.SpeedSource = "gps"
		}
	}

	if err := h.sampler.LastError(); err != nil {
		resp.Error = sampler.Message(err)
		resp.ErrorRetryable = sampler.Retryable(err)
	}

	if h.vehicle != nil {
		resp.VehicleState = h.vehicle.State().String()
		if data, ok := h.vehicle.Latest(); ok {
			d := data
			resp.Vehicle = &d
			// Wheel speed beats GPS speed while the feed is fresh.
			resp.SpeedKmh = d.SpeedKmh
			resp.SpeedSource = "vehicle"
		}
	}
	return resp
}
