package render

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"
)

const defaultPulsePeriod = 1500 * time.Millisecond

// FrameFunc assembles the current frame state on demand.
type FrameFunc func() Frame

// Loop drives repeated rendering. It paints on a fixed cadence while the
// pulse animation is live and otherwise only when something invalidated
// the view, so an idle map costs nothing.
type Loop struct {
	renderer    *Renderer
	frameFn     FrameFunc
	interval    time.Duration
	pulsePeriod time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	latest  image.Image
	frameNo uint64

	dirty chan struct{}
}

// NewLoop creates a render loop over the given renderer.
func NewLoop(r *Renderer, frameFn FrameFunc, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Loop{
		renderer:    r,
		frameFn:     frameFn,
		interval:    interval,
		pulsePeriod: defaultPulsePeriod,
		dirty:       make(chan struct{}, 1),
	}
}

// Start launches the loop goroutine. A second Start replaces the first:
// there is never more than one active loop, and exactly one handle stops it.
func (l *Loop) Start(ctx context.Context) {
	l.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go l.run(ctx, done)
	slog.Info("Render loop started", "interval", l.interval)
}

// Stop halts the loop and waits for the in-flight frame to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Invalidate schedules a repaint. Safe to call from any goroutine; calls
// coalesce while a frame is pending.
func (l *Loop) Invalidate() {
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

// Latest returns the most recently rendered frame, or nil before the first.
func (l *Loop) Latest() image.Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// FrameCount reports how many frames have been rendered.
func (l *Loop) FrameCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameNo
}

// RenderOnce renders a single frame immediately, outside the cadence.
func (l *Loop) RenderOnce(ctx context.Context) (image.Image, error) {
	return l.paint(ctx)
}

// RenderSized renders a one-off frame at the given canvas size without
// touching the view state or the cached latest frame.
func (l *Loop) RenderSized(ctx context.Context, w, h int) (image.Image, error) {
	f := l.frameFn()
	f.Viewport.Width = w
	f.Viewport.Height = h
	return l.renderer.Render(ctx, f)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := time.Now()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.Invalidate()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Render loop stopped")
			return
		case <-ticker.C:
		}

		// The gate: skip the frame unless the pulse is animating or
		// something marked the view dirty.
		f := l.frameFn()
		dirty := false
		select {
		case <-l.dirty:
			dirty = true
		default:
		}
		if !dirty && !f.Tracking {
			continue
		}

		f.PulsePhase = float64(time.Since(start)%l.pulsePeriod) / float64(l.pulsePeriod)
		img, err := l.renderer.Render(ctx, f)
		if err != nil {
			slog.Debug("Frame skipped", "error", err)
			continue
		}
		l.mu.Lock()
		l.latest = img
		l.frameNo++
		l.mu.Unlock()
	}
}

func (l *Loop) paint(ctx context.Context) (image.Image, error) {
	f := l.frameFn()
	img, err := l.renderer.Render(ctx, f)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.latest = img
	l.frameNo++
	l.mu.Unlock()
	return img, nil
}
