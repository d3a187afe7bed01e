package vehicle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roadscout/pkg/model"
)

// State tracks where the channel is in its connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrGaveUp is the terminal error after the reconnect budget is spent.
var ErrGaveUp = errors.New("vehicle channel gave up after max attempts")

// Config controls the vehicle data channel.
type Config struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Staleness   time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Staleness <= 0 {
		c.Staleness = 5 * time.Second
	}
}

// Channel streams live vehicle telemetry over a websocket. A dropped
// connection is retried with exponential backoff up to MaxAttempts in a
// row; one successful connect resets the budget.
type Channel struct {
	cfg Config

	mu      sync.Mutex
	state   State
	lastErr error
	latest  model.VehicleData
	hasData bool
	onData  func(model.VehicleData)
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a channel for the given endpoint.
func New(cfg Config) *Channel {
	cfg.applyDefaults()
	return &Channel{cfg: cfg}
}

// OnData registers a callback invoked for every telemetry message.
func (c *Channel) OnData(fn func(model.VehicleData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onData = fn
}

// Start launches the connection loop. A second Start replaces the first.
func (c *Channel) Start(ctx context.Context) {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.state = StateConnecting
	c.lastErr = nil
	c.mu.Unlock()

	go c.run(ctx, done)
}

// Stop closes the connection and waits for the loop to exit.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent connection failure.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Latest returns the newest telemetry sample. ok is false before the
// first message and after the data has gone stale.
func (c *Channel) Latest() (model.VehicleData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasData || time.Since(c.latest.ReceivedAt) > c.cfg.Staleness {
		return model.VehicleData{}, false
	}
	return c.latest, true
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			attempt++
			c.mu.Lock()
			c.lastErr = err
			if attempt >= c.cfg.MaxAttempts {
				c.state = StateFailed
				c.lastErr = errors.Join(ErrGaveUp, err)
				c.mu.Unlock()
				slog.Warn("Vehicle channel failed", "url", c.cfg.URL, "attempts", attempt, "error", err)
				return
			}
			c.state = StateReconnecting
			c.mu.Unlock()

			delay := backoff(c.cfg.BaseDelay, c.cfg.MaxDelay, attempt)
			slog.Debug("Vehicle connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()
		slog.Info("Vehicle channel connected", "url", c.cfg.URL)

		c.readLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		attempt++
		c.mu.Lock()
		c.state = StateReconnecting
		c.mu.Unlock()
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock the read when the channel stops.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var data model.VehicleData
		if err := conn.ReadJSON(&data); err != nil {
			if ctx.Err() == nil {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
				slog.Debug("Vehicle read failed", "error", err)
			}
			return
		}
		data.ReceivedAt = time.Now()

		c.mu.Lock()
		c.latest = data
		c.hasData = true
		cb := c.onData
		c.mu.Unlock()
		if cb != nil {
			cb(data)
		}
	}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}
