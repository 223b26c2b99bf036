// pkg/physics/body.go
package physics

import (
	"fmt"
)

// ConstructionError reports an invalid body parameter. It is returned from
// NewRigidBody and never produced during a tick.
type ConstructionError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("physics: invalid %s %g: %s", e.Field, e.Value, e.Reason)
}

// BodyConfig contains the tuning parameters of a rigid body
type BodyConfig struct {
	Mass            float64 // kg, > 0
	Inertia         Vector3 // diagonal inertia tensor in craft-local axes, every component > 0
	LinearDamping   float64 // fraction of velocity removed each tick, [0, 1)
	AngularDamping  float64 // fraction of angular velocity removed each tick, [0, 1)
	Radius          float64 // bounding sphere radius, > 0
	MaxSpeed        float64 // m/s, 0 disables the clamp
	MaxAngularSpeed float64 // rad/s, 0 disables the clamp
}

// Validate checks the configuration for values that cannot be simulated
func (c BodyConfig) Validate() error {
	if !(c.Mass > 0) || !isFinite(c.Mass) {
		return &ConstructionError{Field: "mass", Value: c.Mass, Reason: "must be positive"}
	}
	for _, component := range []struct {
		name  string
		value float64
	}{
		{"inertia.x", c.Inertia.X},
		{"inertia.y", c.Inertia.Y},
		{"inertia.z", c.Inertia.Z},
	} {
		if !(component.value > 0) || !isFinite(component.value) {
			return &ConstructionError{Field: component.name, Value: component.value, Reason: "must be positive"}
		}
	}
	if c.LinearDamping < 0 || c.LinearDamping >= 1 {
		return &ConstructionError{Field: "linear damping", Value: c.LinearDamping, Reason: "must be in [0, 1)"}
	}
	if c.AngularDamping < 0 || c.AngularDamping >= 1 {
		return &ConstructionError{Field: "angular damping", Value: c.AngularDamping, Reason: "must be in [0, 1)"}
	}
	if !(c.Radius > 0) {
		return &ConstructionError{Field: "radius", Value: c.Radius, Reason: "must be positive"}
	}
	if c.MaxSpeed < 0 {
		return &ConstructionError{Field: "max speed", Value: c.MaxSpeed, Reason: "must not be negative"}
	}
	if c.MaxAngularSpeed < 0 {
		return &ConstructionError{Field: "max angular speed", Value: c.MaxAngularSpeed, Reason: "must not be negative"}
	}
	return nil
}

// Pose is the initial placement of a body
type Pose struct {
	Position    Vector3
	Orientation Orientation
}

// State is the kinematic state of a rigid body
type State struct {
	Position        Vector3     `json:"position"`
	Velocity        Vector3     `json:"velocity"`
	Orientation     Orientation `json:"orientation"`
	AngularVelocity Vector3     `json:"angularVelocity"`
	Mass            float64     `json:"mass"`
	Inertia         Vector3     `json:"inertia"`
}

// IntegrationReport describes which parts of a step were skipped to keep
// the state finite
type IntegrationReport struct {
	OrientationSkipped bool // orientation could not be renormalized, previous kept
	LinearRejected     bool // velocity or position became non-finite, previous kept
	AngularRejected    bool // angular velocity became non-finite, previous kept
	InputDropped       bool // a non-finite force or torque was ignored
}

// Clean reports whether the step completed without any recovery
func (r IntegrationReport) Clean() bool {
	return !r.OrientationSkipped && !r.LinearRejected && !r.AngularRejected && !r.InputDropped
}

// RigidBody integrates a craft's translational and rotational motion
type RigidBody struct {
	config BodyConfig
	state  State
	force  Vector3
	torque Vector3

	inputDropped bool
}

// NewRigidBody creates a body at rest in the given pose
func NewRigidBody(config BodyConfig, pose Pose) (*RigidBody, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !pose.Position.IsFinite() {
		return nil, &ConstructionError{Field: "position", Value: pose.Position.Length(), Reason: "must be finite"}
	}
	orientation := pose.Orientation
	if orientation.q.W == 0 && orientation.q.V.Len() == 0 {
		orientation = Identity()
	}
	return &RigidBody{
		config: config,
		state: State{
			Position:    pose.Position,
			Orientation: orientation,
			Mass:        config.Mass,
			Inertia:     config.Inertia,
		},
	}, nil
}

// Config returns the body tuning parameters
func (b *RigidBody) Config() BodyConfig {
	return b.config
}

// Radius returns the bounding sphere radius
func (b *RigidBody) Radius() float64 {
	return b.config.Radius
}

// State returns a copy of the current kinematic state
func (b *RigidBody) State() State {
	return b.state
}

// Position returns the current position
func (b *RigidBody) Position() Vector3 {
	return b.state.Position
}

// ApplyForce accumulates a world-space force and torque for the next step
func (b *RigidBody) ApplyForce(force, torque Vector3) {
	if force.IsFinite() {
		b.force = b.force.Add(force)
	} else {
		b.inputDropped = true
	}
	if torque.IsFinite() {
		b.torque = b.torque.Add(torque)
	} else {
		b.inputDropped = true
	}
}

// ApplyLocalForce accumulates a force and torque given in craft-local axes
func (b *RigidBody) ApplyLocalForce(thrust, torque Vector3) {
	b.ApplyForce(b.state.Orientation.Rotate(thrust), b.state.Orientation.Rotate(torque))
}

// Integrate advances the state by dt seconds using semi-implicit Euler and
// clears the force and torque accumulators
func (b *RigidBody) Integrate(dt float64) IntegrationReport {
	report := IntegrationReport{InputDropped: b.inputDropped}
	defer b.clearAccumulators()

	if !(dt > 0) || !isFinite(dt) {
		return report
	}

	// Translation: velocity first, then position with the new velocity
	acceleration := b.force.Scale(1 / b.config.Mass)
	velocity := b.state.Velocity.Add(acceleration.Scale(dt))
	velocity = velocity.Scale(1 - b.config.LinearDamping)
	velocity = velocity.ClampLength(b.config.MaxSpeed)
	position := b.state.Position.Add(velocity.Scale(dt))
	if velocity.IsFinite() && position.IsFinite() {
		b.state.Velocity = velocity
		b.state.Position = position
	} else {
		report.LinearRejected = true
	}

	// Rotation: inertia is diagonal in craft-local axes
	localTorque := b.state.Orientation.Unrotate(b.torque)
	localAlpha := Vector3{
		X: localTorque.X / b.config.Inertia.X,
		Y: localTorque.Y / b.config.Inertia.Y,
		Z: localTorque.Z / b.config.Inertia.Z,
	}
	alpha := b.state.Orientation.Rotate(localAlpha)
	angular := b.state.AngularVelocity.Add(alpha.Scale(dt))
	angular = angular.Scale(1 - b.config.AngularDamping)
	angular = angular.ClampLength(b.config.MaxAngularSpeed)
	if angular.IsFinite() {
		b.state.AngularVelocity = angular
	} else {
		report.AngularRejected = true
	}

	orientation, err := b.state.Orientation.Integrate(b.state.AngularVelocity, dt)
	if err != nil || !orientation.IsFinite() {
		report.OrientationSkipped = true
	} else {
		b.state.Orientation = orientation
	}

	return report
}

func (b *RigidBody) clearAccumulators() {
	b.force = Vector3{}
	b.torque = Vector3{}
	b.inputDropped = false
}
