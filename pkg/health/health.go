// Package health aggregates component checks into the liveness and readiness
// probes of the search and analytics services. A component is either
// critical (down means the service is down) or optional (down only degrades
// the service, as with the result cache).
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 2 * time.Second

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type component struct {
	check    Check
	optional bool
}

type Checker struct {
	mu         sync.RWMutex
	components map[string]component
	logger     *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]component),
		logger:     slog.Default().With("component", "health"),
	}
}

// Register adds a critical component.
func (c *Checker) Register(name string, check Check) {
	c.add(name, component{check: check})
}

// RegisterOptional adds a component whose outage only degrades the service.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.add(name, component{check: check, optional: true})
}

func (c *Checker) add(name string, comp component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = comp
}

// Run probes every component concurrently, each under its own timeout. The
// overall status is the worst component status after optional outages are
// downgraded to degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	components := make(map[string]component, len(c.components))
	for name, comp := range c.components {
		components[name] = comp
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]ComponentHealth, len(components))
		g       errgroup.Group
	)
	for name, comp := range components {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			res := comp.check(checkCtx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			res.Optional = comp.optional
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusUp
	for name, res := range results {
		effective := res.Status
		if res.Optional && effective == StatusDown {
			effective = StatusDegraded
		}
		if effective.severity() > overall.severity() {
			overall = effective
		}
		if res.Status != StatusUp {
			c.logger.Debug("component not healthy", "name", name, "status", res.Status, "message", res.Message)
		}
	}
	return Report{
		Status:     overall,
		Components: results,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Static reports a fixed status, for components settled at startup such as
// the loaded corpus.
func Static(status Status, message string) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: status, Message: message}
	}
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.write(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when the service is down. A degraded
// service still serves searches.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.write(w, status, report)
	}
}

func (c *Checker) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Error("failed to encode health response", "error", err)
	}
}
