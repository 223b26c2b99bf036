// pkg/course/course.go
package course

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// ErrNoGates is returned when a course is built without any gate
var ErrNoGates = errors.New("course: course has no gates")

// DefaultBoundary is the edge length used when a document omits its boundaries
const DefaultBoundary = 20000.0

// Variant selects the wireframe model of an obstacle
type Variant int

const (
	VariantCube        Variant = 1
	VariantTetrahedron Variant = 2
	VariantJagged      Variant = 3
)

// Valid reports whether v is a known model
func (v Variant) Valid() bool {
	return v >= VariantCube && v <= VariantJagged
}

// String returns the model name
func (v Variant) String() string {
	switch v {
	case VariantCube:
		return "cube"
	case VariantTetrahedron:
		return "tetrahedron"
	case VariantJagged:
		return "jagged"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// RadiusFactor is the bounding sphere radius of the unit model. Cube and
// tetrahedron vertices sit on the corners of the unit cube; the jagged model
// is the cube stretched by 1.2.
func (v Variant) RadiusFactor() float64 {
	switch v {
	case VariantCube, VariantTetrahedron:
		return math.Sqrt(3) / 2
	case VariantJagged:
		return 1.2 * math.Sqrt(3) / 2
	default:
		return 0
	}
}

// Gate is a disc the craft must fly through. Its plane normal is the
// forward axis of Orientation.
type Gate struct {
	Index       int
	Position    physics.Vector3
	Orientation physics.Orientation
	Radius      float64
}

// Normal returns the unit plane normal
func (g Gate) Normal() physics.Vector3 {
	return g.Orientation.Forward()
}

// Disc returns the gate shape used by the passage test
func (g Gate) Disc() physics.Disc {
	return physics.Disc{Center: g.Position, Normal: g.Normal(), Radius: g.Radius}
}

// Obstacle is a static asteroid. Orientation and AngularVelocity only affect
// how it is drawn; collision uses the bounding sphere.
type Obstacle struct {
	Position        physics.Vector3
	Scale           float64
	Variant         Variant
	Orientation     physics.Orientation
	AngularVelocity physics.Vector3
}

// Radius returns the collision radius
func (o Obstacle) Radius() float64 {
	return o.Scale * o.Variant.RadiusFactor()
}

// Sphere returns the collision shape
func (o Obstacle) Sphere() physics.Sphere {
	return physics.Sphere{Center: o.Position, Radius: o.Radius()}
}

// OrientationAt returns the visual orientation t seconds into the session
func (o Obstacle) OrientationAt(t float64) physics.Orientation {
	speed := o.AngularVelocity.Length()
	spin, err := physics.FromAxisAngle(o.AngularVelocity, speed*t)
	if err != nil {
		return o.Orientation
	}
	return spin.Mul(o.Orientation)
}

// Bounds is the size of the box, centered on the origin, the course is
// designed in
type Bounds struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Depth  float64 `json:"depth" yaml:"depth"`
}

// DefaultBounds returns the cube used when no boundaries are given
func DefaultBounds() Bounds {
	return Bounds{Width: DefaultBoundary, Height: DefaultBoundary, Depth: DefaultBoundary}
}

// IsZero reports whether no dimension is set
func (b Bounds) IsZero() bool {
	return b.Width == 0 && b.Height == 0 && b.Depth == 0
}

// Box returns the bounds as an axis-aligned box
func (b Bounds) Box() physics.Box {
	return physics.Box{Size: physics.Vector3{X: b.Width, Y: b.Height, Z: b.Depth}}
}

// Layout is an unvalidated description of a course. Gates are in race order.
// Editors work on layouts; the simulation only sees a Course.
type Layout struct {
	Name      string
	Bounds    Bounds
	Gates     []Gate
	Obstacles []Obstacle
}

// Clone returns a deep copy of the layout
func (l Layout) Clone() Layout {
	clone := l
	clone.Gates = append([]Gate(nil), l.Gates...)
	clone.Obstacles = append([]Obstacle(nil), l.Obstacles...)
	return clone
}

// Course is the read-only set of gates and obstacles of one session. It is
// safe for concurrent readers.
type Course struct {
	name      string
	bounds    Bounds
	gates     []Gate
	obstacles []Obstacle

	index     *physics.Octree
	maxRadius float64
	checksum  uint64
}

// octreeCapacity is the number of obstacles a node holds before splitting
const octreeCapacity = 8

// New validates a layout and builds a course from it. Gate indices are
// reassigned from slice order.
func New(layout Layout) (*Course, error) {
	if len(layout.Gates) == 0 {
		return nil, ErrNoGates
	}

	bounds := layout.Bounds
	if bounds.IsZero() {
		bounds = DefaultBounds()
	}
	if err := validateBounds(bounds); err != nil {
		return nil, err
	}

	gates := make([]Gate, len(layout.Gates))
	for i, gate := range layout.Gates {
		if err := validateGate(i, gate); err != nil {
			return nil, err
		}
		gate.Index = i
		gates[i] = gate
	}

	obstacles := append([]Obstacle(nil), layout.Obstacles...)
	index := physics.NewOctree(bounds.Box(), octreeCapacity)
	maxRadius := 0.0
	for i, obstacle := range obstacles {
		if err := validateObstacle(i, obstacle); err != nil {
			return nil, err
		}
		index.Insert(obstacle.Position, i)
		maxRadius = math.Max(maxRadius, obstacle.Radius())
	}

	c := &Course{
		name:      layout.Name,
		bounds:    bounds,
		gates:     gates,
		obstacles: obstacles,
		index:     index,
		maxRadius: maxRadius,
	}

	sum, err := checksum(c.Layout())
	if err != nil {
		return nil, fmt.Errorf("course: checksum: %w", err)
	}
	c.checksum = sum
	return c, nil
}

// Name returns the course name
func (c *Course) Name() string { return c.name }

// Bounds returns the course boundaries
func (c *Course) Bounds() Bounds { return c.bounds }

// NumGates returns the number of gates
func (c *Course) NumGates() int { return len(c.gates) }

// Gate returns the gate with race index i
func (c *Course) Gate(i int) (Gate, bool) {
	if i < 0 || i >= len(c.gates) {
		return Gate{}, false
	}
	return c.gates[i], true
}

// Gates returns a copy of the gates in race order
func (c *Course) Gates() []Gate {
	return append([]Gate(nil), c.gates...)
}

// NumObstacles returns the number of obstacles
func (c *Course) NumObstacles() int { return len(c.obstacles) }

// Obstacle returns obstacle i
func (c *Course) Obstacle(i int) (Obstacle, bool) {
	if i < 0 || i >= len(c.obstacles) {
		return Obstacle{}, false
	}
	return c.obstacles[i], true
}

// Obstacles returns a copy of the obstacles
func (c *Course) Obstacles() []Obstacle {
	return append([]Obstacle(nil), c.obstacles...)
}

// ObstaclesNear returns, in ascending order, the indices of obstacles whose
// sphere may reach within radius of pos
func (c *Course) ObstaclesNear(pos physics.Vector3, radius float64) []int {
	if len(c.obstacles) == 0 || !pos.IsFinite() {
		return nil
	}
	candidates := c.index.Query(physics.BoxAround(pos, radius+c.maxRadius))
	sort.Ints(candidates)
	return candidates
}

// FirstCollision returns the lowest index obstacle that a body sphere at pos
// overlaps
func (c *Course) FirstCollision(pos physics.Vector3, bodyRadius float64) (int, bool) {
	for _, i := range c.ObstaclesNear(pos, bodyRadius) {
		if physics.CheckObstacleCollision(pos, bodyRadius, c.obstacles[i].Sphere()) {
			return i, true
		}
	}
	return -1, false
}

// InBounds reports whether pos lies inside the course boundaries
func (c *Course) InBounds(pos physics.Vector3) bool {
	return c.bounds.Box().Covers(pos)
}

// Checksum identifies the course content. Replays store it to detect a
// mismatched course.
func (c *Course) Checksum() uint64 { return c.checksum }

// Layout returns an editable copy of the course
func (c *Course) Layout() Layout {
	return Layout{
		Name:      c.name,
		Bounds:    c.bounds,
		Gates:     c.Gates(),
		Obstacles: c.Obstacles(),
	}
}

func validateBounds(b Bounds) error {
	for _, dim := range []struct {
		name  string
		value float64
	}{{"width", b.Width}, {"height", b.Height}, {"depth", b.Depth}} {
		if !(dim.value > 0) || math.IsInf(dim.value, 0) {
			return &FormatError{Field: "boundaries." + dim.name, Index: -1, Reason: "must be positive"}
		}
	}
	return nil
}

func validateGate(i int, g Gate) error {
	if !g.Position.IsFinite() {
		return &FormatError{Field: "gates.position", Index: i, Reason: "must be finite"}
	}
	if !g.Orientation.IsFinite() {
		return &FormatError{Field: "gates.orientation", Index: i, Reason: "must be finite"}
	}
	if !(g.Radius > 0) || math.IsInf(g.Radius, 0) {
		return &FormatError{Field: "gates.radius", Index: i, Reason: "must be positive"}
	}
	return nil
}

func validateObstacle(i int, o Obstacle) error {
	if !o.Position.IsFinite() {
		return &FormatError{Field: "obstacles.position", Index: i, Reason: "must be finite"}
	}
	if !(o.Scale > 0) || math.IsInf(o.Scale, 0) {
		return &FormatError{Field: "obstacles.scale", Index: i, Reason: "must be positive"}
	}
	if !o.Variant.Valid() {
		return &FormatError{Field: "obstacles.model", Index: i, Reason: "must be 1, 2 or 3"}
	}
	if !o.Orientation.IsFinite() || !o.AngularVelocity.IsFinite() {
		return &FormatError{Field: "obstacles.orientation", Index: i, Reason: "must be finite"}
	}
	return nil
}
