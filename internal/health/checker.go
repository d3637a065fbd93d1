// Package health runs named dependency checks for the HTTP /health endpoint and the
// worker's gRPC serving status.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const StatusOK = "ok"

// CheckFunc reports whether one dependency is reachable.
type CheckFunc func(ctx context.Context) error

type check struct {
	name string
	fn   CheckFunc
}

// Report is the outcome of one Run. Dependencies maps each check name to "ok" or its error.
type Report struct {
	Healthy      bool
	Dependencies map[string]string
	Err          error
}

type Checker struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
	logger  *zap.Logger
}

func NewChecker(timeout time.Duration, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout, logger: logger}
}

func (c *Checker) Add(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, fn: fn})
}

// Run executes every check concurrently, each bounded by the checker timeout.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, chk check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			errs[i] = chk.fn(checkCtx)
		}(i, chk)
	}
	wg.Wait()

	report := Report{Healthy: true, Dependencies: make(map[string]string, len(checks))}
	for i, chk := range checks {
		if errs[i] != nil {
			report.Healthy = false
			report.Dependencies[chk.name] = errs[i].Error()
			report.Err = multierr.Append(report.Err, fmt.Errorf("%s: %w", chk.name, errs[i]))
			continue
		}
		report.Dependencies[chk.name] = StatusOK
	}
	return report
}

// Watch runs the checks immediately and then every interval until ctx is done, calling
// onChange on the first result and whenever health flips.
func (c *Checker) Watch(ctx context.Context, interval time.Duration, onChange func(healthy bool)) {
	if interval <= 0 {
		c.logger.Info("Dependency health watch disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	first := true
	var last bool
	for {
		report := c.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if first || report.Healthy != last {
			if report.Healthy {
				c.logger.Info("Dependencies healthy", zap.Any("dependencies", report.Dependencies))
			} else {
				c.logger.Warn("Dependencies unhealthy", zap.Error(report.Err))
			}
			onChange(report.Healthy)
			first = false
			last = report.Healthy
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
