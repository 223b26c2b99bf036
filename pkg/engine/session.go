// pkg/engine/session.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/EngoEngine/ecs"
	"github.com/google/uuid"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/event"
	"github.com/opd-ai/go-spacerace/pkg/input"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/physics"
	"github.com/opd-ai/go-spacerace/pkg/race"
)

// maxCatchUp bounds the number of ticks run back to back after the host
// stalls; older backlog is dropped.
const maxCatchUp = 5

// StopReason explains why a session stopped
type StopReason string

const (
	StopFinished  StopReason = "finished"
	StopCollided  StopReason = "collided"
	StopMaxTicks  StopReason = "max_ticks"
	StopCancelled StopReason = "cancelled"
)

// Snapshot is the state after one completed tick. Snapshots are never
// modified once published.
type Snapshot struct {
	SessionID string        `json:"sessionId"`
	Tick      uint64        `json:"tick"`
	Time      float64       `json:"time"` // simulated seconds
	Body      physics.State `json:"body"`
	Race      race.State    `json:"race"`
	Command   input.Command `json:"command"` // clamped command applied this tick
	InBounds  bool          `json:"inBounds"`
	Halted    bool          `json:"halted"`
}

// TickRecorder receives the clamped command of every tick, before it is
// applied
type TickRecorder interface {
	RecordTick(tick uint64, cmd input.Command) error
}

// Option customizes a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus publishes session events on bus instead of a private one
func WithEventBus(bus *event.Bus) Option {
	return func(s *Session) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithRecorder attaches a recorder for applied commands
func WithRecorder(recorder TickRecorder) Option {
	return func(s *Session) { s.recorder = recorder }
}

// WithMonitor records tick durations into monitor
func WithMonitor(monitor *TickMonitor) Option {
	return func(s *Session) {
		if monitor != nil {
			s.monitor = monitor
		}
	}
}

// WithObserver calls fn with every snapshot published after a tick, on the
// loop goroutine. fn must not block.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// WithSessionID overrides the generated session ID
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session runs one craft through one course. Step, RunTicks and Run must be
// called from a single goroutine; Snapshot may be called from any.
type Session struct {
	id      string
	sim     config.SimulationConfig
	limits  input.Limits
	dt      float64
	course  *course.Course
	body    *physics.RigidBody
	tracker *race.Tracker
	source  input.Source
	world   *ecs.World

	bus       *event.Bus
	logger    *logging.Logger
	ctx       context.Context
	recorder  TickRecorder
	monitor   *TickMonitor
	observers []func(Snapshot)

	tick     uint64
	command  input.Command
	prev     physics.Vector3
	inBounds bool
	halted   bool
	started  bool
	stopped  bool

	snapshot atomic.Pointer[Snapshot]
}

// NewSession creates a session with the craft at rest at its start pose.
// A nil config uses the defaults and a nil source idles.
func NewSession(c *course.Course, cfg *config.Config, source input.Source, opts ...Option) (*Session, error) {
	if c == nil {
		return nil, errors.New("engine: nil course")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if source == nil {
		source = input.Idle{}
	}

	dt := cfg.Simulation.Timestep()
	if !(dt > 0) {
		return nil, fmt.Errorf("engine: invalid tick rate %d", cfg.Simulation.TickRate)
	}

	body, err := physics.NewRigidBody(cfg.Craft.Body(), cfg.Craft.Pose())
	if err != nil {
		return nil, fmt.Errorf("engine: craft: %w", err)
	}

	tracker, err := race.NewTracker(c)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	s := &Session{
		id:      uuid.NewString(),
		sim:     cfg.Simulation,
		limits:  cfg.Input.Limits(),
		dt:      dt,
		course:  c,
		body:    body,
		tracker: tracker,
		source:  source,
		bus:     event.NewEventBus(),
		logger:  logging.NewNopLogger(),
		monitor: NewTickMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx = logging.WithSession(context.Background(), s.id)
	s.logger = s.logger.With("component", "engine", "course", c.Name())
	s.prev = body.Position()
	s.inBounds = c.InBounds(s.prev)

	s.world = &ecs.World{}
	s.world.AddSystem(&controlSystem{session: s})
	s.world.AddSystem(&physicsSystem{session: s})
	s.world.AddSystem(&raceSystem{session: s})

	s.publishSnapshot()
	return s, nil
}

// ID returns the session ID
func (s *Session) ID() string { return s.id }

// Course returns the course being raced
func (s *Session) Course() *course.Course { return s.course }

// Events returns the bus session events are published on
func (s *Session) Events() *event.Bus { return s.bus }

// Monitor returns the tick duration monitor
func (s *Session) Monitor() *TickMonitor { return s.monitor }

// Timestep returns the fixed tick duration in seconds
func (s *Session) Timestep() float64 { return s.dt }

// Tick returns the number of completed ticks
func (s *Session) Tick() uint64 { return s.tick }

// Status returns the race status
func (s *Session) Status() race.Status { return s.tracker.Status() }

// Snapshot returns the state after the last completed tick
func (s *Session) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Step runs one tick: input, integration, race progress, snapshot
func (s *Session) Step() Snapshot {
	s.start()

	began := time.Now()
	s.tick++
	s.world.Update(float32(s.dt))
	snap := s.publishSnapshot()
	s.monitor.Observe(time.Since(began))

	for _, observe := range s.observers {
		observe(*snap)
	}
	return *snap
}

// Done reports whether the session should stop before the next tick
func (s *Session) Done() (StopReason, bool) {
	if s.sim.StopOnRaceEnd {
		switch s.tracker.Status() {
		case race.Finished:
			return StopFinished, true
		case race.Collided:
			return StopCollided, true
		}
	}
	if s.sim.MaxTicks > 0 && s.tick >= s.sim.MaxTicks {
		return StopMaxTicks, true
	}
	return "", false
}

// RunTicks runs up to n ticks back to back, stopping early once Done
// reports true. The result depends only on the course, the configuration
// and the input source.
func (s *Session) RunTicks(n int) Snapshot {
	for i := 0; i < n; i++ {
		if _, done := s.Done(); done {
			break
		}
		s.Step()
	}
	return s.Snapshot()
}

// Run drives the session until ctx is cancelled or Done reports true.
// When the simulation is realtime, ticks are paced to the wall clock with a
// fixed-step accumulator; otherwise they run as fast as possible. Ticks are
// never interrupted: cancellation is observed between ticks.
func (s *Session) Run(ctx context.Context) error {
	s.start()

	if !s.sim.Realtime {
		for {
			if reason, done := s.Done(); done {
				s.Stop(reason)
				return nil
			}
			select {
			case <-ctx.Done():
				s.Stop(StopCancelled)
				return ctx.Err()
			default:
			}
			s.Step()
		}
	}

	step := time.Duration(float64(time.Second) * s.dt)
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	last := time.Now()
	var accumulator time.Duration
	for {
		if reason, done := s.Done(); done {
			s.Stop(reason)
			return nil
		}
		select {
		case <-ctx.Done():
			s.Stop(StopCancelled)
			return ctx.Err()
		case now := <-ticker.C:
			accumulator += now.Sub(last)
			last = now
			if accumulator > maxCatchUp*step {
				s.logger.Debug(logging.WithTick(s.ctx, s.tick), "dropping tick backlog", "backlog", accumulator)
				accumulator = maxCatchUp * step
			}
			for accumulator >= step {
				if _, done := s.Done(); done {
					break
				}
				s.Step()
				accumulator -= step
			}
		}
	}
}

// Stop publishes the session stopped event. Only the first call has an
// effect.
func (s *Session) Stop(reason StopReason) {
	if s.stopped {
		return
	}
	s.stopped = true

	state := s.tracker.State()
	s.logger.Info(logging.WithTick(s.ctx, s.tick), "session stopped",
		"reason", string(reason),
		"status", state.Status.String(),
		"gates_passed", state.GatesPassed,
	)
	s.bus.Publish(event.NewSessionEvent(event.SessionStopped, s, s.id, s.tick, string(reason)))
}

func (s *Session) start() {
	if s.started {
		return
	}
	s.started = true

	s.logger.Info(s.ctx, "session started",
		"gates", s.course.NumGates(),
		"obstacles", s.course.NumObstacles(),
		"tick_rate", s.sim.TickRate,
	)
	s.bus.Publish(event.NewSessionEvent(event.SessionStarted, s, s.id, s.tick, ""))
}

func (s *Session) publishSnapshot() *Snapshot {
	snap := &Snapshot{
		SessionID: s.id,
		Tick:      s.tick,
		Time:      float64(s.tick) * s.dt,
		Body:      s.body.State(),
		Race:      s.tracker.State(),
		Command:   s.command,
		InBounds:  s.inBounds,
		Halted:    s.halted,
	}
	s.snapshot.Store(snap)
	return snap
}
