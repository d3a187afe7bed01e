// Package sampler acquires and filters the continuous stream of geographic
// positions and derives motion statistics from the accepted samples.
package sampler

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"roadscout/pkg/geo"
	"roadscout/pkg/model"
)

const (
	defaultHistoryLimit = 1000
	defaultSpeedWindow  = 100

	// headingMinTravelM is the window travel below which no heading is
	// derived from the track; see geo.TrackBuffer.
	headingMinTravelM = 3.0
)

// Config tunes the sampler. The displacement filter and accuracy gate are
// deliberately configuration, not constants.
type Config struct {
	HighAccuracy     bool
	Timeout          time.Duration
	MaxSampleAge     time.Duration
	SampleInterval   time.Duration
	MinDisplacementM float64
	AccuracyGateM    float64
	HistoryLimit     int
	SpeedWindow      int
}

func (c *Config) applyDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.SpeedWindow <= 0 {
		c.SpeedWindow = defaultSpeedWindow
	}
	if c.AccuracyGateM <= 0 {
		c.AccuracyGateM = 20
	}
}

// Sampler owns the track history and motion statistics. All mutation happens
// under one mutex so the accept/reject decision and the stats update are
// atomic with respect to a single incoming fix.
type Sampler struct {
	provider Provider

	mu         sync.Mutex
	cfg        Config
	tracking   bool
	sub        Subscription
	pollStop   chan struct{}
	history    []Position
	totalDistM float64
	speedRing  []float64
	avgKmh     float64
	maxKmh     float64
	lastErr    error
	onUpdate   func(Position)

	pollWG     sync.WaitGroup
	headingBuf *geo.TrackBuffer
}

// New creates a sampler on top of the given location provider.
func New(p Provider) *Sampler {
	return &Sampler{
		provider:   p,
		headingBuf: geo.NewTrackBuffer(5),
	}
}

// OnUpdate registers a callback invoked (outside the sampler lock) for every
// accepted sample. Used by the view controller and the render loop.
func (s *Sampler) OnUpdate(fn func(Position)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Start begins tracking. It subscribes to the provider's watch stream and,
// when SampleInterval is set, runs a supplementary high-frequency poll.
// The returned error is also kept as the user-visible error state.
func (s *Sampler) Start(ctx context.Context, cfg Config) error {
	if s.provider == nil {
		s.mu.Lock()
		s.lastErr = ErrNoProvider
		s.mu.Unlock()
		return ErrNoProvider
	}

	s.Stop() // restart semantics: at most one active subscription

	cfg.applyDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.lastErr = nil
	s.tracking = true
	s.mu.Unlock()

	opts := Options{
		HighAccuracy: cfg.HighAccuracy,
		Timeout:      cfg.Timeout,
		MaxAge:       cfg.MaxSampleAge,
	}

	sub, err := s.provider.Watch(opts, s.handleFix, s.handleWatchError)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.tracking = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.sub = sub
	if cfg.SampleInterval > 0 {
		s.pollStop = make(chan struct{})
		s.pollWG.Add(1)
		go s.poll(opts, cfg.SampleInterval, s.pollStop)
	}
	s.mu.Unlock()

	slog.Info("Tracking started",
		"high_accuracy", cfg.HighAccuracy,
		"min_displacement_m", cfg.MinDisplacementM,
		"accuracy_gate_m", cfg.AccuracyGateM)
	return nil
}

// Stop halts the watch subscription and the supplementary poll synchronously.
// History and stats are preserved; only ClearHistory resets them.
func (s *Sampler) Stop() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	stop := s.pollStop
	s.pollStop = nil
	wasTracking := s.tracking
	s.tracking = false
	s.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	if stop != nil {
		close(stop)
		s.pollWG.Wait()
	}
	if wasTracking {
		slog.Info("Tracking stopped")
	}
}

// ClearHistory drops the track history and resets all derived statistics.
func (s *Sampler) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.totalDistM = 0
	s.speedRing = nil
	s.avgKmh = 0
	s.maxKmh = 0
	s.mu.Unlock()
	s.headingBuf.Reset()
}

// Tracking reports whether a watch subscription is active.
func (s *Sampler) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// LastError returns the stored location error, if any.
func (s *Sampler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Current returns the most recent accepted sample.
func (s *Sampler) Current() (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Position{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns a snapshot copy of the track history. Callers never observe
// later mutation through it.
func (s *Sampler) History() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, len(s.history))
	copy(out, s.history)
	return out
}

// Stats returns the current motion statistics.
func (s *Sampler) Stats() model.MotionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.MotionStats{
		TotalDistanceM:  s.totalDistM,
		AverageSpeedKmh: s.avgKmh,
		MaxSpeedKmh:     s.maxKmh,
	}
}

// handleFix applies the acceptance rule to one raw fix and updates history
// and stats on acceptance. Invalid coordinates are dropped at this boundary.
func (s *Sampler) handleFix(p Position) {
	if !geo.Valid(p.Lat, p.Lon) || p.AccuracyM < 0 ||
		math.IsNaN(p.AccuracyM) || math.IsInf(p.AccuracyM, 0) {
		slog.Debug("Dropping malformed fix", "lat", p.Lat, "lon", p.Lon, "accuracy", p.AccuracyM)
		return
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}

	s.mu.Lock()
	if !s.tracking {
		s.mu.Unlock()
		return
	}
	if s.cfg.MaxSampleAge > 0 && time.Since(p.Timestamp) > s.cfg.MaxSampleAge {
		s.mu.Unlock()
		return
	}

	var dist float64
	if len(s.history) > 0 {
		last := s.history[len(s.history)-1]
		dist = geo.Distance(geo.Point{Lat: last.Lat, Lon: last.Lon}, geo.Point{Lat: p.Lat, Lon: p.Lon})

		// Jitter filter: a short hop only counts when the fix itself is
		// trustworthy. A genuinely low-noise, low-movement reading passes.
		if dist < s.cfg.MinDisplacementM && p.AccuracyM > s.cfg.AccuracyGateM {
			s.mu.Unlock()
			return
		}
	}

	// Derive a heading from the track when the fix carries none.
	derived := s.headingBuf.Push(geo.Point{Lat: p.Lat, Lon: p.Lon}, math.NaN(), headingMinTravelM)
	if p.HeadingDeg == nil && !math.IsNaN(derived) {
		h := derived
		p.HeadingDeg = &h
	}

	s.history = append(s.history, p)
	if len(s.history) > s.cfg.HistoryLimit {
		s.history = s.history[1:]
	}
	s.totalDistM += dist

	if p.SpeedMS != nil {
		kmh := *p.SpeedMS * 3.6
		s.speedRing = append(s.speedRing, kmh)
		if len(s.speedRing) > s.cfg.SpeedWindow {
			s.speedRing = s.speedRing[1:]
		}
		if kmh > s.maxKmh {
			s.maxKmh = kmh
		}
		var sum float64
		for _, v := range s.speedRing {
			sum += v
		}
		s.avgKmh = sum / float64(len(s.speedRing))
	}

	cb := s.onUpdate
	s.mu.Unlock()

	if cb != nil {
		cb(p)
	}
}

// handleWatchError records the failure and stops tracking. The actual
// subscription teardown happens off the callback goroutine, since a provider
// may invoke errFn from the goroutine its Stop waits for.
func (s *Sampler) handleWatchError(err error) {
	slog.Warn("Location stream failed", "error", err, "message", Message(err))
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	go s.Stop()
}

// poll supplements the watch stream with periodic one-shot fixes. Poll
// failures are logged but not fatal; the watch stream is the authoritative
// error source.
func (s *Sampler) poll(opts Options, interval time.Duration, stop chan struct{}) {
	defer s.pollWG.Done()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			p, err := s.provider.Current(ctx, opts)
			cancel()
			if err != nil {
				slog.Debug("Supplementary poll failed", "error", err)
				continue
			}
			s.handleFix(p)
		}
	}
}
