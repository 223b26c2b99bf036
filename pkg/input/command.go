// pkg/input/command.go
package input

import (
	"math"

	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// Command is the pilot input for one tick, in craft-local axes: thrust in
// newtons, torque in newton-metres. +Z is forward.
type Command struct {
	Thrust physics.Vector3 `json:"thrust"`
	Torque physics.Vector3 `json:"torque"`
}

// IsZero reports whether the command applies nothing
func (c Command) IsZero() bool {
	return c.Thrust.IsZero() && c.Torque.IsZero()
}

// Limits caps the magnitude of commands before they reach the rigid body
type Limits struct {
	MaxThrust float64 `json:"maxThrust" yaml:"max_thrust"`
	MaxTorque float64 `json:"maxTorque" yaml:"max_torque"`
}

// Clamp limits both vectors of c. Non-finite vectors are replaced by zero
// and a non-positive limit disables clamping for that vector.
func (l Limits) Clamp(c Command) Command {
	return Command{
		Thrust: clampVector(c.Thrust, l.MaxThrust),
		Torque: clampVector(c.Torque, l.MaxTorque),
	}
}

func clampVector(v physics.Vector3, limit float64) physics.Vector3 {
	if !v.IsFinite() {
		return physics.Vector3{}
	}
	return v.ClampLength(limit)
}

// Axes are normalized controller positions in [-1, 1]
type Axes struct {
	Yaw    float64 `json:"yaw" yaml:"yaw"`
	Pitch  float64 `json:"pitch" yaml:"pitch"`
	Roll   float64 `json:"roll" yaml:"roll"`
	Thrust float64 `json:"thrust" yaml:"thrust"`
}

// Mapper turns controller axes into commands
type Mapper struct {
	Limits      Limits
	Deadzone    float64 // axis magnitude below which input is ignored, [0, 1)
	InvertPitch bool
}

// Map converts axes into a command scaled by the limits
func (m Mapper) Map(a Axes) Command {
	pitch := m.axis(a.Pitch)
	if m.InvertPitch {
		pitch = -pitch
	}
	return Command{
		Thrust: physics.Vector3{Z: m.axis(a.Thrust) * m.Limits.MaxThrust},
		Torque: physics.Vector3{
			X: pitch * m.Limits.MaxTorque,
			Y: m.axis(a.Yaw) * m.Limits.MaxTorque,
			Z: m.axis(a.Roll) * m.Limits.MaxTorque,
		},
	}
}

// axis applies the deadzone and rescales the remaining travel back to [-1, 1]
func (m Mapper) axis(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	value = math.Max(-1, math.Min(1, value))
	dz := math.Max(0, math.Min(m.Deadzone, 0.99))
	magnitude := math.Abs(value)
	if magnitude < dz {
		return 0
	}
	return math.Copysign((magnitude-dz)/(1-dz), value)
}
