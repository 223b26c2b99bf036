// pkg/race/tracker.go
package race

import (
	"errors"
	"fmt"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// Status is the race progress state
type Status int

const (
	// Racing is the initial state
	Racing Status = iota
	// Collided is terminal: the craft hit an obstacle
	Collided
	// Finished is terminal: every gate was passed in order
	Finished
)

func (s Status) String() string {
	switch s {
	case Racing:
		return "racing"
	case Collided:
		return "collided"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "racing":
		*s = Racing
	case "collided":
		*s = Collided
	case "finished":
		*s = Finished
	default:
		return fmt.Errorf("race: unknown status %q", text)
	}
	return nil
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == Collided || s == Finished
}

// State is the progress of one race attempt
type State struct {
	TargetGate   int      `json:"targetGate"`
	GatesPassed  int      `json:"gatesPassed"`
	TotalGates   int      `json:"totalGates"`
	Status       Status   `json:"status"`
	Finished     bool     `json:"finished"`
	Collided     bool     `json:"collided"`
	Ticks        uint64   `json:"ticks"`        // ticks observed while racing
	Splits       []uint64 `json:"splits"`       // tick each gate was passed on
	CollidedWith int      `json:"collidedWith"` // obstacle index, -1 when none
	EndTick      uint64   `json:"endTick"`      // tick of the terminal transition
}

// Clone returns a copy that shares no memory with s
func (s State) Clone() State {
	s.Splits = append([]uint64(nil), s.Splits...)
	return s
}

// Outcome describes what a single observation changed
type Outcome struct {
	GatePassed int    // index of the gate passed this tick, -1 when none
	Obstacle   int    // index of the obstacle hit this tick, -1 when none
	From       Status // status before the tick
	To         Status // status after the tick
}

// PassedGate reports whether a gate was passed
func (o Outcome) PassedGate() bool { return o.GatePassed >= 0 }

// Transitioned reports whether the status changed
func (o Outcome) Transitioned() bool { return o.From != o.To }

// Tracker advances race progress from the craft's swept motion. It is owned
// by the simulation loop and is not safe for concurrent use.
type Tracker struct {
	course *course.Course
	state  State

	// side of the target gate plane the craft was last seen off, 0 while
	// unknown
	approach float64
}

// NewTracker creates a tracker targeting gate 0 of c
func NewTracker(c *course.Course) (*Tracker, error) {
	if c == nil {
		return nil, errors.New("race: nil course")
	}
	if c.NumGates() == 0 {
		return nil, course.ErrNoGates
	}
	return &Tracker{
		course: c,
		state: State{
			TotalGates:   c.NumGates(),
			Status:       Racing,
			Splits:       make([]uint64, 0, c.NumGates()),
			CollidedWith: -1,
		},
	}, nil
}

// Observe feeds the craft's motion during tick, from prev to curr, into the
// state machine. Only the target gate is tested; the gate is evaluated before
// obstacle contact. Terminal states ignore every observation.
func (t *Tracker) Observe(tick uint64, prev, curr physics.Vector3, bodyRadius float64) Outcome {
	outcome := Outcome{GatePassed: -1, Obstacle: -1, From: t.state.Status, To: t.state.Status}
	if t.state.Status != Racing {
		return outcome
	}
	t.state.Ticks++

	if gate, ok := t.course.Gate(t.state.TargetGate); ok {
		disc := gate.Disc()
		if side := disc.Side(prev); side != 0 {
			t.approach = side
		}
		if physics.CheckGatePassageFrom(prev, curr, disc, t.approach) {
			outcome.GatePassed = gate.Index
			t.state.TargetGate++
			t.state.GatesPassed++
			t.state.Splits = append(t.state.Splits, tick)
			t.approach = 0
			if next, ok := t.course.Gate(t.state.TargetGate); ok {
				t.approach = next.Disc().Side(curr)
			} else {
				t.state.Status = Finished
				t.state.Finished = true
				t.state.EndTick = tick
			}
		} else if side := disc.Side(curr); side != 0 {
			t.approach = side
		}
	}

	if t.state.Status == Racing {
		if obstacle, hit := t.course.FirstCollision(curr, bodyRadius); hit {
			outcome.Obstacle = obstacle
			t.state.Status = Collided
			t.state.Collided = true
			t.state.CollidedWith = obstacle
			t.state.EndTick = tick
		}
	}

	outcome.To = t.state.Status
	return outcome
}

// State returns a copy of the current race state
func (t *Tracker) State() State {
	return t.state.Clone()
}

// Status returns the current status
func (t *Tracker) Status() Status {
	return t.state.Status
}

// Course returns the course being raced
func (t *Tracker) Course() *course.Course {
	return t.course
}
