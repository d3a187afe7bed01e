// Package probe runs startup health checks before the server goes live.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CheckFunc performs one health check, returning nil on success.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check. Critical failures prevent startup;
// the rest are logged and tolerated.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool
}

// Result holds the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order, capping each at five seconds so a
// dead tile mirror cannot hang startup.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	for i, p := range probes {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Check(checkCtx)
		cancel()
		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs every outcome and returns a combined error when any
// critical probe failed.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))
		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}
	return errors.Join(criticalErrors...)
}

// Getter fetches a URL, returning the body.
type Getter interface {
	Get(ctx context.Context, u string) ([]byte, error)
}

// TileMirror builds a probe that downloads the world tile (z0) from the
// given mirror template.
func TileMirror(name, urlTemplate string, g Getter, critical bool) Probe {
	u := strings.NewReplacer("{z}", "0", "{x}", "0", "{y}", "0").Replace(urlTemplate)
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(ctx context.Context) error {
			body, err := g.Get(ctx, u)
			if err != nil {
				return err
			}
			if len(body) == 0 {
				return errors.New("empty tile response")
			}
			return nil
		},
	}
}
