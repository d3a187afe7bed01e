// Package request provides the HTTP fetch plumbing for tile downloads:
// per-host queues with a bounded worker pool, exponential backoff with
// jitter on retryable failures, and usage tracking.
package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"roadscout/pkg/tracker"
	"roadscout/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("roadscout/%s (vehicle companion; tiles cached in memory)", version.Version)

// Config tunes the client.
type Config struct {
	Retries        int
	Timeout        time.Duration
	WorkersPerHost int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
}

// Client performs GET requests with per-host queuing and retries. Tile
// mirrors are slow or flaky sometimes; the queue keeps one misbehaving host
// from starving the others.
type Client struct {
	httpClient *http.Client
	tracker    *tracker.Tracker
	cfg        Config

	mu     sync.Mutex
	queues map[string]chan job
}

type job struct {
	req      *http.Request
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client.
func New(cfg Config, t *tracker.Tracker) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.WorkersPerHost <= 0 {
		cfg.WorkersPerHost = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracker:    t,
		cfg:        cfg,
		queues:     make(map[string]chan job),
	}
}

// Get performs a GET request against u, queued per host.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	host := parsedURL.Host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	respChan := make(chan jobResult, 1)
	c.dispatch(host, job{req: req, respChan: respChan})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// dispatch sends the job to the host's queue, starting workers on first use.
func (c *Client) dispatch(host string, j job) {
	c.mu.Lock()
	q, ok := c.queues[host]
	if !ok {
		q = make(chan job, 128)
		c.queues[host] = q
		for i := 0; i < c.cfg.WorkersPerHost; i++ {
			go c.worker(host, q)
		}
	}
	c.mu.Unlock()

	select {
	case q <- j:
	default:
		// Queue full: the caller is flooding (fast pan across zoom levels).
		// Dropping is safe, tiles are re-requested on the next frame.
		j.respChan <- jobResult{err: fmt.Errorf("request queue full for %s", host)}
	}
}

func (c *Client) worker(host string, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}
		body, err := c.executeWithBackoff(j.req)
		if err == nil {
			c.tracker.TrackFetchSuccess(host)
		} else {
			c.tracker.TrackFetchFailure(host)
		}
		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithBackoff attempts the request, retrying on network errors, 429
// and 5xx with exponential backoff plus jitter.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			select {
			case <-time.After(c.backoffDelay(attempt)):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}

		slog.Debug("Tile fetch", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			slog.Warn("Fetch failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			slog.Warn("Mirror backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded for %s", req.URL.Host)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt-1)) * float64(c.cfg.BaseDelay))
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	// 10% jitter keeps mirror retries from synchronizing.
	return delay + time.Duration(rand.Float64()*0.1*float64(delay))
}
