// pkg/physics/vector.go
package physics

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the smallest magnitude that can still be normalized
const Epsilon = 1e-8

// ErrDegenerateVector is returned when a vector is too short to define a direction
var ErrDegenerateVector = errors.New("physics: degenerate vector")

// Vector3 represents a 3D vector with x, y and z components
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Unit axes in craft-local space. The nose points along +Z
var (
	AxisX = Vector3{X: 1}
	AxisY = Vector3{Y: 1}
	AxisZ = Vector3{Z: 1}
)

// Vec3 builds a vector from its components
func Vec3(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

// FromSlice builds a vector from a three element slice
func FromSlice(v []float64) (Vector3, bool) {
	if len(v) != 3 {
		return Vector3{}, false
	}
	return Vector3{X: v[0], Y: v[1], Z: v[2]}, true
}

// Add returns the sum of two vectors
func (v Vector3) Add(other Vector3) Vector3 {
	return Vector3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub returns the difference between two vectors
func (v Vector3) Sub(other Vector3) Vector3 {
	return Vector3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale multiplies the vector by a scalar value
func (v Vector3) Scale(factor float64) Vector3 {
	return Vector3{
		X: v.X * factor,
		Y: v.Y * factor,
		Z: v.Z * factor,
	}
}

// Mul multiplies the vectors component-wise
func (v Vector3) Mul(other Vector3) Vector3 {
	return Vector3{
		X: v.X * other.X,
		Y: v.Y * other.Y,
		Z: v.Z * other.Z,
	}
}

// Dot returns the dot product of two vectors
func (v Vector3) Dot(other Vector3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the cross product v x other
func (v Vector3) Cross(other Vector3) Vector3 {
	return Vector3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Length returns the magnitude of the vector
func (v Vector3) Length() float64 {
	return math.Sqrt(v.LengthSquared())
}

// LengthSquared returns magnitude squared (optimization for comparisons)
func (v Vector3) LengthSquared() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Distance returns the distance between two points
func (v Vector3) Distance(other Vector3) float64 {
	return v.Sub(other).Length()
}

// Normalize returns a unit vector in the same direction.
// Vectors shorter than Epsilon have no direction and yield ErrDegenerateVector.
func (v Vector3) Normalize() (Vector3, error) {
	length := v.Length()
	if length < Epsilon || math.IsNaN(length) || math.IsInf(length, 0) {
		return Vector3{}, ErrDegenerateVector
	}
	return v.Scale(1 / length), nil
}

// ClampLength scales the vector down so its magnitude does not exceed limit.
// A non-positive limit disables the clamp.
func (v Vector3) ClampLength(limit float64) Vector3 {
	if !(limit > 0) {
		return v
	}
	lengthSq := v.LengthSquared()
	if lengthSq == 0 || lengthSq <= limit*limit {
		return v
	}
	return v.Scale(limit / math.Sqrt(lengthSq))
}

// IsFinite reports whether every component is a finite number
func (v Vector3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// IsZero reports whether all components are exactly zero
func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// ApproxEqual compares two vectors component-wise within tolerance
func (v Vector3) ApproxEqual(other Vector3, tolerance float64) bool {
	return math.Abs(v.X-other.X) <= tolerance &&
		math.Abs(v.Y-other.Y) <= tolerance &&
		math.Abs(v.Z-other.Z) <= tolerance
}

// Slice returns the components as a three element slice
func (v Vector3) Slice() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func (v Vector3) mgl() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromMgl(v mgl64.Vec3) Vector3 {
	return Vector3{X: v[0], Y: v[1], Z: v[2]}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
