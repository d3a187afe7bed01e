package sampler

import (
	"context"
	"time"
)

// Position is an immutable snapshot of one location fix. Optional fields are
// nil when the platform fix did not carry them.
type Position struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AccuracyM  float64   `json:"accuracyMeters"`
	AltitudeM  *float64  `json:"altitude,omitempty"`
	HeadingDeg *float64  `json:"headingDegrees,omitempty"`
	SpeedMS    *float64  `json:"speedMetersPerSecond,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Options mirror the platform location capability's request options.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// Subscription is the handle for an active position watch. Stop is
// synchronous: no callback fires after it returns.
type Subscription interface {
	Stop()
}

// Provider abstracts the platform's location capability. The only concrete
// implementation in this repository is the simulated drive feed; real
// hardware stays behind this interface.
type Provider interface {
	// Current returns a single fix, honoring the timeout in opts.
	Current(ctx context.Context, opts Options) (Position, error)
	// Watch delivers a continuous stream of fixes to fn and failures to
	// errFn until the returned subscription is stopped.
	Watch(opts Options, fn func(Position), errFn func(error)) (Subscription, error)
}
