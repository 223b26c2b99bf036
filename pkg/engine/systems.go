// pkg/engine/systems.go
package engine

import (
	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-spacerace/pkg/event"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/race"
)

// System priorities; higher runs first within a tick
const (
	controlPriority = 30
	physicsPriority = 20
	racePriority    = 10
)

// controlSystem reads the input source, clamps the command and applies it
// to the craft
type controlSystem struct {
	session *Session
}

func (cs *controlSystem) Priority() int { return controlPriority }

// Remove satisfies the ecs.System interface
func (cs *controlSystem) Remove(ecs.BasicEntity) {}

// Update ignores the world's float32 dt; the session timestep is used instead
func (cs *controlSystem) Update(float32) {
	s := cs.session
	cmd := s.limits.Clamp(s.source.Next(s.tick))
	s.command = cmd

	if s.recorder != nil {
		if err := s.recorder.RecordTick(s.tick, cmd); err != nil {
			s.logger.Error(logging.WithTick(s.ctx, s.tick), "recording failed, recorder detached", err)
			s.recorder = nil
		}
	}

	if s.halted {
		return
	}
	s.body.ApplyLocalForce(cmd.Thrust, cmd.Torque)
}

// physicsSystem integrates the craft over one timestep
type physicsSystem struct {
	session *Session
}

func (ps *physicsSystem) Priority() int { return physicsPriority }

// Remove satisfies the ecs.System interface
func (ps *physicsSystem) Remove(ecs.BasicEntity) {}

// Update ignores the world's float32 dt; the session timestep is used instead
func (ps *physicsSystem) Update(float32) {
	s := ps.session
	s.prev = s.body.Position()
	if s.halted {
		return
	}

	report := s.body.Integrate(s.dt)
	if report.Clean() {
		return
	}

	s.logger.Debug(s.ctx, "integration anomaly",
		"tick", s.tick,
		"orientation_skipped", report.OrientationSkipped,
		"linear_rejected", report.LinearRejected,
		"angular_rejected", report.AngularRejected,
		"input_dropped", report.InputDropped,
	)
	anomaly := event.NewAnomalyEvent(s, s.id, s.tick)
	anomaly.OrientationSkipped = report.OrientationSkipped
	anomaly.LinearRejected = report.LinearRejected
	anomaly.AngularRejected = report.AngularRejected
	anomaly.InputDropped = report.InputDropped
	s.bus.Publish(anomaly)
}

// raceSystem feeds the swept motion of the tick into the race tracker and
// watches the course boundaries
type raceSystem struct {
	session *Session
}

func (rs *raceSystem) Priority() int { return racePriority }

// Remove satisfies the ecs.System interface
func (rs *raceSystem) Remove(ecs.BasicEntity) {}

// Update ignores the world's float32 dt; the session timestep is used instead
func (rs *raceSystem) Update(float32) {
	s := rs.session
	curr := s.body.Position()
	outcome := s.tracker.Observe(s.tick, s.prev, curr, s.body.Radius())

	if outcome.PassedGate() {
		state := s.tracker.State()
		s.logger.Info(s.ctx, "gate passed",
			"tick", s.tick,
			"gate", outcome.GatePassed,
			"gates_passed", state.GatesPassed,
			"total_gates", state.TotalGates,
		)
		s.bus.Publish(event.NewGateEvent(s, s.id, s.tick, outcome.GatePassed, state.GatesPassed, outcome.To.String()))
	}

	if outcome.Transitioned() {
		rs.transition(outcome)
	}

	inBounds := s.course.InBounds(curr)
	if s.inBounds && !inBounds {
		s.logger.Warn(logging.WithTick(s.ctx, s.tick), "craft left course boundaries")
		s.bus.Publish(event.NewBoundaryEvent(s, s.id, s.tick))
	}
	s.inBounds = inBounds
}

func (rs *raceSystem) transition(outcome race.Outcome) {
	s := rs.session
	state := s.tracker.State()

	switch outcome.To {
	case race.Finished:
		s.logger.Info(s.ctx, "race finished",
			"tick", s.tick,
			"race_ticks", state.Ticks,
			"seconds", float64(state.Ticks)*s.dt,
		)
		s.bus.Publish(event.NewFinishEvent(s, s.id, s.tick, state.GatesPassed))
	case race.Collided:
		s.logger.Info(s.ctx, "obstacle collision",
			"tick", s.tick,
			"obstacle", outcome.Obstacle,
			"gates_passed", state.GatesPassed,
		)
		s.bus.Publish(event.NewCollisionEvent(s, s.id, s.tick, outcome.Obstacle, state.GatesPassed))
		if s.sim.HaltOnCollision {
			s.halted = true
		}
	}
}
