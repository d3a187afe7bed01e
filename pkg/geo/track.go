package geo

import "sync"

// TrackBuffer maintains a rolling window of coordinates and derives a smoothed
// ground heading from them. The sampler feeds it accepted fixes so that a
// heading can be shown even when the platform fix carries none.
type TrackBuffer struct {
	mu         sync.RWMutex
	samples    []Point
	windowSize int
}

// NewTrackBuffer creates a new buffer with the specified sample window size.
func NewTrackBuffer(windowSize int) *TrackBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	return &TrackBuffer{
		windowSize: windowSize,
	}
}

// Push adds a new point and returns the heading (degrees) from the oldest to
// the newest point in the window. With fewer than 2 points, or when the window
// spans less than minTravelM meters, it returns defaultHeading — a heading
// derived from stationary jitter is noise.
func (b *TrackBuffer) Push(p Point, defaultHeading, minTravelM float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, p)
	if len(b.samples) > b.windowSize {
		b.samples = b.samples[1:]
	}

	if len(b.samples) < 2 {
		return defaultHeading
	}

	first := b.samples[0]
	last := b.samples[len(b.samples)-1]
	if Distance(first, last) < minTravelM {
		return defaultHeading
	}
	return Bearing(first, last)
}

// Reset clears the buffer history.
func (b *TrackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}
