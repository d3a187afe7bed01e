// Package model holds the shared record types exchanged between the
// positioning, rendering and API layers. All of them are plain value types;
// ownership rules are documented on each.
package model

import (
	"time"

	"github.com/paulmach/orb"
)

// Marker categories understood by the renderer.
const (
	CategoryFuel    = "fuel"
	CategoryParking = "parking"
)

// Marker is a point of interest supplied by the place index (or an external
// trip component). The renderer only reads markers, it never owns them.
type Marker struct {
	ID         string  `json:"id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Category   string  `json:"category"`
	Label      string  `json:"label"`
	Rating     float64 `json:"rating,omitempty"`
	PriceLevel int     `json:"priceLevel,omitempty"`
}

// Route is an ephemeral polyline regenerated whenever a destination is
// selected. Line coordinates are orb (lon, lat) points.
type Route struct {
	Line     orb.LineString
	ColorHex string
	WidthPx  float64
}

// MotionStats is derived incrementally from consecutive accepted samples.
type MotionStats struct {
	TotalDistanceM  float64 `json:"totalDistanceMeters"`
	AverageSpeedKmh float64 `json:"averageSpeedKmh"`
	MaxSpeedKmh     float64 `json:"maxSpeedKmh"`
}

// VehicleData is the optional record pushed by the vehicle-data channel.
// When fresh, its speed overrides the GPS-derived value for display.
type VehicleData struct {
	SpeedKmh     float64 `json:"speed"`
	FuelLevelPct float64 `json:"fuelLevel"`
	EngineTempC  float64 `json:"engineTemp"`
	RPM          float64 `json:"rpm"`
	OdometerKm   float64 `json:"odometer"`

	ReceivedAt time.Time `json:"-"`
}
