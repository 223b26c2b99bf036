package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/physics"
)

func passing(name string) Check {
	return NewCheck(name, func(context.Context) error { return nil })
}

func failing(name, msg string) Check {
	return NewCheck(name, func(context.Context) error { return errors.New(msg) })
}

func TestChecker_AddRemove(t *testing.T) {
	c := NewChecker(passing("b"), passing("a"))
	assert.Equal(t, []string{"a", "b"}, c.Names())

	c.Add(failing("a", "replaced"))
	assert.Equal(t, []string{"a", "b"}, c.Names())
	assert.Equal(t, "replaced", c.Run(context.Background()).Checks["a"].Message)

	c.Remove("a")
	assert.Equal(t, []string{"b"}, c.Names())
}

func TestChecker_Run(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		want   Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all passing", []Check{passing("simulation"), passing("memory")}, StatusHealthy},
		{"one failing", []Check{passing("simulation"), failing("memory", "too much")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewChecker(tt.checks...).Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, tt.want == StatusHealthy, report.Healthy())
			assert.Len(t, report.Checks, len(tt.checks))
			assert.False(t, report.CheckedAt.IsZero())
		})
	}
}

func TestChecker_RunsChecksConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	blocking := func(name string) Check {
		return NewCheck(name, func(ctx context.Context) error {
			if started.Add(1) == 2 {
				close(release)
			}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	c := NewChecker(blocking("one"), blocking("two"))
	c.SetTimeout(2 * time.Second)
	report := c.Run(context.Background())
	assert.True(t, report.Healthy(), "%+v", report)
}

func TestChecker_Timeout(t *testing.T) {
	c := NewChecker(NewCheck("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	}))
	c.SetTimeout(20 * time.Millisecond)
	c.SetTimeout(0)

	report := c.Run(context.Background())
	require.False(t, report.Healthy())
	assert.Contains(t, report.Checks["slow"].Message, "timed out")
}

func TestChecker_Handlers(t *testing.T) {
	mux := http.NewServeMux()
	c := NewChecker(passing("simulation"))
	c.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var alive map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&alive))
	assert.Equal(t, "alive", alive["status"])
	assert.Contains(t, alive, "uptime_seconds")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	c.Add(failing("telemetry", "telemetry listener is not active"))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusHealthy, report.Checks["simulation"].Status)
	assert.Equal(t, "telemetry listener is not active", report.Checks["telemetry"].Message)
}

func TestSimulationCheck(t *testing.T) {
	timestep := time.Second / 60

	tests := []struct {
		name    string
		probe   SimulationProbe
		wantErr string
	}{
		{"no running probe", SimulationProbe{}, "not running"},
		{"stopped", SimulationProbe{Running: func() bool { return false }}, "not running"},
		{"running without stats", SimulationProbe{Running: func() bool { return true }}, ""},
		{"keeping up", SimulationProbe{
			Running: func() bool { return true },
			Stats:   func() engine.TickStats { return engine.TickStats{Samples: 10, Average: time.Millisecond} },
		}, ""},
		{"no samples yet", SimulationProbe{
			Running: func() bool { return true },
			Stats:   func() engine.TickStats { return engine.TickStats{Average: time.Second} },
		}, ""},
		{"falling behind", SimulationProbe{
			Running: func() bool { return true },
			Stats:   func() engine.TickStats { return engine.TickStats{Samples: 10, Average: 20 * time.Millisecond} },
		}, "exceeds timestep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewSimulationCheck(tt.probe, timestep)
			assert.Equal(t, "simulation", check.Name())
			err := check.Check(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestSimulationCheck_Stall(t *testing.T) {
	var tick atomic.Uint64
	check := NewSimulationCheck(SimulationProbe{
		Running: func() bool { return true },
		Tick:    tick.Load,
	}, time.Second/60)
	assert.Equal(t, time.Second, check.StallAfter)

	now := time.Unix(1000, 0)
	check.now = func() time.Time { return now }

	require.NoError(t, check.Check(context.Background()))

	now = now.Add(500 * time.Millisecond)
	assert.NoError(t, check.Check(context.Background()), "within the stall window")

	now = now.Add(time.Second)
	assert.ErrorContains(t, check.Check(context.Background()), "stalled at tick 0")

	tick.Store(5)
	assert.NoError(t, check.Check(context.Background()), "progress clears the stall")
}

func TestListenerCheck(t *testing.T) {
	var addr atomic.Value
	addr.Store("")
	check := NewListenerCheck("telemetry", func() string { return addr.Load().(string) })

	assert.Equal(t, "telemetry", check.Name())
	assert.ErrorContains(t, check.Check(context.Background()), "telemetry listener is not active")

	addr.Store("127.0.0.1:8088")
	assert.NoError(t, check.Check(context.Background()))
}

func TestMemoryCheck(t *testing.T) {
	tests := []struct {
		name    string
		usage   int64
		wantErr bool
	}{
		{"below limit", 100, false},
		{"at limit", 512, false},
		{"above limit", 600, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewMemoryCheck(512, func() int64 { return tt.usage })
			assert.Equal(t, "memory", check.Name())
			err := check.Check(context.Background())
			if tt.wantErr {
				assert.ErrorContains(t, err, "exceeds limit")
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// The runtime heap of a test binary is far below 4 GB
	assert.NoError(t, NewMemoryCheck(4096, nil).Check(context.Background()))
	assert.GreaterOrEqual(t, CurrentMemoryMB(), int64(0))
}

// A real session drives the simulation check from not running, through
// running, to stopped
func TestSimulationCheck_WithSession(t *testing.T) {
	c, err := course.New(course.Layout{
		Name:  "health",
		Gates: []course.Gate{{Position: physics.Vec3(0, 0, 500), Radius: 50}},
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Simulation.StopOnRaceEnd = false
	session, err := engine.NewSession(c, cfg, nil)
	require.NoError(t, err)

	var running atomic.Bool
	checker := NewChecker(
		NewSimulationCheck(SimulationProbe{
			Running: running.Load,
			Tick:    func() uint64 { return session.Snapshot().Tick },
			Stats:   session.Monitor().Stats,
		}, time.Duration(session.Timestep()*float64(time.Second))),
		NewMemoryCheck(4096, nil),
	)

	assert.False(t, checker.Run(context.Background()).Healthy())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	running.Store(true)
	go func() {
		err := session.Run(ctx)
		running.Store(false)
		done <- err
	}()

	require.Eventually(t, func() bool { return session.Snapshot().Tick > 5 }, 5*time.Second, 10*time.Millisecond)
	report := checker.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Checks["memory"].Status)
	assert.Equal(t, StatusHealthy, report.Checks["simulation"].Status, report.Checks["simulation"].Message)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, checker.Run(context.Background()).Healthy())
}
