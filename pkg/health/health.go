// Package health provides liveness and readiness endpoints for the
// simulator's telemetry server. Readiness runs every registered check
// concurrently and reports each component separately.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-spacerace/pkg/engine"
)

// DefaultTimeout bounds each check run by the readiness handler
const DefaultTimeout = 2 * time.Second

// Status is the outcome of a check or of a whole report
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check is one component probe. Check returns nil while the component is
// healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheck adapts a function to the Check interface
func NewCheck(name string, fn func(ctx context.Context) error) Check {
	return checkFunc{name: name, fn: fn}
}

// Result is the outcome of one check
type Result struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Report aggregates the results of every check. Status is healthy only when
// all checks pass.
type Report struct {
	Status    Status            `json:"status"`
	CheckedAt time.Time         `json:"checked_at"`
	Checks    map[string]Result `json:"checks"`
}

// Healthy reports whether every check passed
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// Checker holds the registered checks
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	started time.Time
}

// NewChecker creates a checker with the given checks
func NewChecker(checks ...Check) *Checker {
	c := &Checker{
		checks:  make(map[string]Check),
		timeout: DefaultTimeout,
		started: time.Now(),
	}
	for _, check := range checks {
		c.Add(check)
	}
	return c
}

// SetTimeout changes the per-check timeout. Non-positive values are ignored.
func (c *Checker) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Add registers check, replacing any check with the same name
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name()] = check
}

// Remove unregisters the named check
func (c *Checker) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names returns the registered check names in sorted order
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently, each bounded by the checker's
// timeout, and waits for all of them
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = run(ctx, check, timeout)
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:    StatusHealthy,
		CheckedAt: time.Now().UTC(),
		Checks:    make(map[string]Result, len(checks)),
	}
	for i, check := range checks {
		if results[i].Status != StatusHealthy {
			report.Status = StatusUnhealthy
		}
		report.Checks[check.Name()] = results[i]
	}
	return report
}

func run(ctx context.Context, check Check, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	began := time.Now()
	done := make(chan error, 1)
	go func() { done <- check.Check(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("check timed out: %w", ctx.Err())
	}

	result := Result{
		Status:    StatusHealthy,
		LatencyMS: float64(time.Since(began).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// Register mounts the liveness and readiness handlers on mux
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", c.LivenessHandler)
	mux.HandleFunc("/ready", c.ReadinessHandler)
}

// LivenessHandler answers 200 while the process can serve requests
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(c.started).Seconds()),
	})
}

// ReadinessHandler answers 200 when every check passes and 503 otherwise,
// with the full report as body
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	report := c.Run(r.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// SimulationProbe reads the state of a running session. Tick and Stats are
// optional.
type SimulationProbe struct {
	Running func() bool
	Tick    func() uint64
	Stats   func() engine.TickStats
}

// SimulationCheck reports the simulation unhealthy when the loop is not
// running, when its average tick cost exceeds the timestep, or when the tick
// counter has not moved for StallAfter.
type SimulationCheck struct {
	probe      SimulationProbe
	timestep   time.Duration
	StallAfter time.Duration
	now        func() time.Time

	mu         sync.Mutex
	lastTick   uint64
	lastChange time.Time
}

// NewSimulationCheck creates the check. A session is considered stalled
// after a hundred timesteps without progress, and never sooner than one
// second.
func NewSimulationCheck(probe SimulationProbe, timestep time.Duration) *SimulationCheck {
	stall := 100 * timestep
	if stall < time.Second {
		stall = time.Second
	}
	return &SimulationCheck{
		probe:      probe,
		timestep:   timestep,
		StallAfter: stall,
		now:        time.Now,
	}
}

func (s *SimulationCheck) Name() string { return "simulation" }

func (s *SimulationCheck) Check(ctx context.Context) error {
	if s.probe.Running == nil || !s.probe.Running() {
		return fmt.Errorf("simulation is not running")
	}
	if s.probe.Stats != nil && s.timestep > 0 {
		stats := s.probe.Stats()
		if stats.Samples > 0 && stats.Average > s.timestep {
			return fmt.Errorf("average tick %v exceeds timestep %v", stats.Average, s.timestep)
		}
	}
	if s.probe.Tick == nil {
		return nil
	}

	tick, now := s.probe.Tick(), s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastChange.IsZero() || tick != s.lastTick {
		s.lastTick, s.lastChange = tick, now
		return nil
	}
	if idle := now.Sub(s.lastChange); idle > s.StallAfter {
		return fmt.Errorf("simulation stalled at tick %d for %v", tick, idle.Round(time.Millisecond))
	}
	return nil
}

// NewListenerCheck reports name unhealthy while addr returns ""
func NewListenerCheck(name string, addr func() string) Check {
	return NewCheck(name, func(context.Context) error {
		if addr() == "" {
			return fmt.Errorf("%s listener is not active", name)
		}
		return nil
	})
}

// MemoryCheck reports unhealthy when heap usage exceeds a limit
type MemoryCheck struct {
	maxMB int64
	usage func() int64
}

// NewMemoryCheck creates a memory check. A nil usage reads the runtime heap
// with CurrentMemoryMB.
func NewMemoryCheck(maxMB int64, usage func() int64) *MemoryCheck {
	if usage == nil {
		usage = CurrentMemoryMB
	}
	return &MemoryCheck{maxMB: maxMB, usage: usage}
}

func (m *MemoryCheck) Name() string { return "memory" }

func (m *MemoryCheck) Check(ctx context.Context) error {
	if current := m.usage(); current > m.maxMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", current, m.maxMB)
	}
	return nil
}

// CurrentMemoryMB returns the heap memory currently allocated, in MB
func CurrentMemoryMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}
