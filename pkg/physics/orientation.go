// pkg/physics/orientation.go
package physics

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Orientation is a unit quaternion describing a rotation from craft-local
// space into world space. The zero value behaves as Identity.
type Orientation struct {
	q mgl64.Quat
}

// unitTolerance is how far a norm may stray from 1 before it is rescaled
const unitTolerance = 1e-15

// Identity returns the orientation that performs no rotation
func Identity() Orientation {
	return Orientation{q: mgl64.QuatIdent()}
}

// FromQuaternion builds an orientation from w, x, y, z components and
// normalizes it. A zero-length quaternion yields ErrDegenerateVector.
func FromQuaternion(w, x, y, z float64) (Orientation, error) {
	q := mgl64.Quat{W: w, V: mgl64.Vec3{x, y, z}}
	return normalizeQuat(q)
}

// FromAxisAngle builds a rotation of angle radians about axis
func FromAxisAngle(axis Vector3, angle float64) (Orientation, error) {
	unit, err := axis.Normalize()
	if err != nil {
		return Orientation{}, err
	}
	return Orientation{q: mgl64.QuatRotate(angle, unit.mgl())}, nil
}

// FromEuler builds an orientation from yaw (about +Y), pitch (about +X) and
// roll (about +Z), all in degrees. Roll is applied first, then pitch, then yaw.
func FromEuler(yawDeg, pitchDeg, rollDeg float64) Orientation {
	yaw := mgl64.QuatRotate(mgl64.DegToRad(yawDeg), mgl64.Vec3{0, 1, 0})
	pitch := mgl64.QuatRotate(mgl64.DegToRad(pitchDeg), mgl64.Vec3{1, 0, 0})
	roll := mgl64.QuatRotate(mgl64.DegToRad(rollDeg), mgl64.Vec3{0, 0, 1})
	return Orientation{q: yaw.Mul(pitch).Mul(roll).Normalize()}
}

// Components returns the quaternion as w, x, y, z
func (o Orientation) Components() (w, x, y, z float64) {
	q := o.quat()
	return q.W, q.V[0], q.V[1], q.V[2]
}

// Slice returns the quaternion as a [w, x, y, z] slice
func (o Orientation) Slice() []float64 {
	w, x, y, z := o.Components()
	return []float64{w, x, y, z}
}

// Norm returns the quaternion magnitude; it stays at 1 for valid orientations
func (o Orientation) Norm() float64 {
	return o.quat().Len()
}

// Rotate transforms a craft-local vector into world space
func (o Orientation) Rotate(v Vector3) Vector3 {
	return fromMgl(o.quat().Rotate(v.mgl()))
}

// Unrotate transforms a world-space vector into craft-local space
func (o Orientation) Unrotate(v Vector3) Vector3 {
	return fromMgl(o.quat().Conjugate().Rotate(v.mgl()))
}

// Forward returns the world-space direction of the local +Z axis
func (o Orientation) Forward() Vector3 {
	return o.Rotate(AxisZ)
}

// Up returns the world-space direction of the local +Y axis
func (o Orientation) Up() Vector3 {
	return o.Rotate(AxisY)
}

// Right returns the world-space direction of the local +X axis
func (o Orientation) Right() Vector3 {
	return o.Rotate(AxisX)
}

// Mul composes two rotations: the result applies other first, then o
func (o Orientation) Mul(other Orientation) Orientation {
	return Orientation{q: o.quat().Mul(other.quat()).Normalize()}
}

// Inverse returns the opposite rotation
func (o Orientation) Inverse() Orientation {
	return Orientation{q: o.quat().Conjugate()}
}

// ApproxEqual reports whether two orientations describe the same rotation
// within tolerance. q and -q are treated as equal.
func (o Orientation) ApproxEqual(other Orientation, tolerance float64) bool {
	dot := math.Abs(o.quat().Dot(other.quat()))
	return 1-dot <= tolerance
}

// IsFinite reports whether every quaternion component is finite
func (o Orientation) IsFinite() bool {
	w, x, y, z := o.Components()
	return isFinite(w) && isFinite(x) && isFinite(y) && isFinite(z)
}

// Integrate advances the orientation by a world-space angular velocity
// (radians per second) over dt using q' = q + dt/2 * (w * q), then
// renormalizes. When the result cannot be normalized the receiver is
// returned unchanged together with ErrDegenerateVector.
func (o Orientation) Integrate(angularVelocity Vector3, dt float64) (Orientation, error) {
	q := o.quat()
	if angularVelocity.IsZero() || dt == 0 {
		return o, nil
	}
	spin := mgl64.Quat{W: 0, V: angularVelocity.mgl()}
	next := q.Add(spin.Mul(q).Scale(0.5 * dt))
	normalized, err := normalizeQuat(next)
	if err != nil {
		return o, err
	}
	return normalized, nil
}

// MarshalJSON encodes the orientation as [w, x, y, z]
func (o Orientation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Slice())
}

// UnmarshalJSON decodes a [w, x, y, z] array
func (o *Orientation) UnmarshalJSON(data []byte) error {
	var parts []float64
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("orientation: expected 4 components, got %d", len(parts))
	}
	parsed, err := FromQuaternion(parts[0], parts[1], parts[2], parts[3])
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// quat treats the zero value as identity so a zero Orientation never
// poisons a calculation
func (o Orientation) quat() mgl64.Quat {
	if o.q.W == 0 && o.q.V[0] == 0 && o.q.V[1] == 0 && o.q.V[2] == 0 {
		return mgl64.QuatIdent()
	}
	return o.q
}

func normalizeQuat(q mgl64.Quat) (Orientation, error) {
	length := q.Len()
	if length < Epsilon || math.IsNaN(length) || math.IsInf(length, 0) {
		return Orientation{}, ErrDegenerateVector
	}
	// Already unit within rounding; rescaling would only flip low bits
	if math.Abs(length-1) <= unitTolerance {
		return Orientation{q: q}, nil
	}
	return Orientation{q: q.Scale(1 / length)}, nil
}
