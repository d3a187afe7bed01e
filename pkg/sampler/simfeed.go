package sampler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"roadscout/pkg/geo"
)

// SimConfig tunes the simulated drive feed.
type SimConfig struct {
	StartLat  float64
	StartLon  float64
	SpeedKmh  float64
	Tick      time.Duration
	AccuracyM float64
	Seed      int64
}

func (c *SimConfig) applyDefaults() {
	if c.SpeedKmh <= 0 {
		c.SpeedKmh = 40
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.AccuracyM <= 0 {
		c.AccuracyM = 8
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// SimProvider synthesizes a vehicle driving from a start point: steady speed,
// drifting heading with occasional turns, and Gaussian position jitter scaled
// by the configured accuracy. It implements Provider.
type SimProvider struct {
	mu      sync.Mutex
	cfg     SimConfig
	pos     geo.Point
	heading float64
	rng     *rand.Rand
}

// NewSimProvider creates a simulated location feed.
func NewSimProvider(cfg SimConfig) *SimProvider {
	cfg.applyDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &SimProvider{
		cfg:     cfg,
		pos:     geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		heading: rng.Float64() * 360,
		rng:     rng,
	}
}

// Current implements Provider.
func (p *SimProvider) Current(ctx context.Context, opts Options) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.makeFix(), nil
}

// Watch implements Provider. The feed ticks until the subscription is
// stopped; Stop is synchronous.
func (p *SimProvider) Watch(opts Options, fn func(Position), errFn func(error)) (Subscription, error) {
	s := &simSub{stop: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(p.cfg.Tick)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				fn(p.advance())
			}
		}
	}()
	return s, nil
}

type simSub struct {
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (s *simSub) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// advance moves the simulated vehicle one tick and returns the resulting fix.
func (p *SimProvider) advance() Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Heading drift, with an occasional real turn at an intersection.
	p.heading += p.rng.NormFloat64() * 4
	if p.rng.Float64() < 0.05 {
		p.heading += float64(p.rng.Intn(4)-2) * 45
	}
	p.heading = math.Mod(p.heading+360, 360)

	distM := p.cfg.SpeedKmh / 3.6 * p.cfg.Tick.Seconds()
	p.pos = geo.DestinationPoint(p.pos, distM, p.heading)

	return p.makeFix()
}

// makeFix snapshots the true position plus measurement noise. Caller holds mu.
func (p *SimProvider) makeFix() Position {
	acc := p.cfg.AccuracyM * (0.7 + p.rng.Float64()*0.6)

	// Horizontal noise roughly within the reported accuracy.
	noisy := geo.DestinationPoint(p.pos,
		math.Abs(p.rng.NormFloat64())*acc/3,
		p.rng.Float64()*360)

	speedMS := p.cfg.SpeedKmh / 3.6 * (0.9 + p.rng.Float64()*0.2)
	heading := p.heading

	return Position{
		Lat:        noisy.Lat,
		Lon:        noisy.Lon,
		AccuracyM:  acc,
		HeadingDeg: &heading,
		SpeedMS:    &speedMS,
		Timestamp:  time.Now(),
	}
}
