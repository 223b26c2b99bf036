// Package editor implements course editing as discrete commands over
// immutable layouts, with undo and redo.
package editor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/physics"
	"github.com/opd-ai/go-spacerace/pkg/validation"
)

// Editing defaults
const (
	DefaultGateRadius    = 800.0
	DefaultObstacleScale = 200.0
	DefaultFieldCount    = 50
	DefaultFieldMinScale = 100.0
	DefaultFieldMaxScale = 500.0
	MinScale             = 10.0
	MinBoundary          = 1000.0
	ScaleStep            = 20.0
	BoundaryStep         = 1000.0
	maxFieldSpin         = 0.1 // rad/s per axis
)

var (
	// ErrInvalidSelection is returned when a command targets an entity that
	// does not exist
	ErrInvalidSelection = errors.New("editor: invalid selection")
	// ErrWrongKind is returned when a command does not apply to the
	// selected kind of entity
	ErrWrongKind = errors.New("editor: command does not apply to selection")
	// ErrInvalidValue is returned for non-finite or out of range arguments
	ErrInvalidValue = errors.New("editor: invalid value")
)

// Command transforms a layout. Apply never modifies its argument; it
// returns a new layout sharing nothing mutable with the input.
type Command interface {
	Name() string
	Apply(layout course.Layout) (course.Layout, error)
}

// Move translates the target by Offset
type Move struct {
	Target Selection
	Offset physics.Vector3
}

func (c Move) Name() string { return "move" }

func (c Move) Apply(layout course.Layout) (course.Layout, error) {
	if !c.Offset.IsFinite() {
		return layout, fmt.Errorf("%w: offset %v", ErrInvalidValue, c.Offset)
	}
	return updateTransform(layout, c.Target, func(t Transform) Transform {
		t.Position = t.Position.Add(c.Offset)
		return t
	})
}

// Rotate turns the target by Angle radians about the world-space Axis
type Rotate struct {
	Target Selection
	Axis   physics.Vector3
	Angle  float64
}

func (c Rotate) Name() string { return "rotate" }

func (c Rotate) Apply(layout course.Layout) (course.Layout, error) {
	spin, err := physics.FromAxisAngle(c.Axis, c.Angle)
	if err != nil || math.IsNaN(c.Angle) || math.IsInf(c.Angle, 0) {
		return layout, fmt.Errorf("%w: rotation about %v by %v", ErrInvalidValue, c.Axis, c.Angle)
	}
	return updateTransform(layout, c.Target, func(t Transform) Transform {
		t.Orientation = spin.Mul(t.Orientation)
		return t
	})
}

// Scale changes an obstacle's scale or a gate's radius by Delta, never
// going below MinScale
type Scale struct {
	Target Selection
	Delta  float64
}

func (c Scale) Name() string { return "scale" }

func (c Scale) Apply(layout course.Layout) (course.Layout, error) {
	if math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0) {
		return layout, fmt.Errorf("%w: scale delta %v", ErrInvalidValue, c.Delta)
	}
	if err := c.Target.check(layout); err != nil {
		return layout, err
	}

	next := layout.Clone()
	switch c.Target.Kind {
	case KindGate:
		gate := &next.Gates[c.Target.Index]
		gate.Radius = math.Max(MinScale, gate.Radius+c.Delta)
	case KindObstacle:
		obstacle := &next.Obstacles[c.Target.Index]
		obstacle.Scale = math.Max(MinScale, obstacle.Scale+c.Delta)
	}
	return next, nil
}

// ChangeModel swaps the wireframe model of an obstacle
type ChangeModel struct {
	Target  Selection
	Variant course.Variant
}

func (c ChangeModel) Name() string { return "change-model" }

func (c ChangeModel) Apply(layout course.Layout) (course.Layout, error) {
	if c.Target.Kind != KindObstacle {
		return layout, fmt.Errorf("%w: %s on %s", ErrWrongKind, c.Name(), c.Target.Kind)
	}
	if !c.Variant.Valid() {
		return layout, fmt.Errorf("%w: model %d", ErrInvalidValue, int(c.Variant))
	}
	if err := c.Target.check(layout); err != nil {
		return layout, err
	}

	next := layout.Clone()
	next.Obstacles[c.Target.Index].Variant = c.Variant
	return next, nil
}

// AddGate appends a gate at the end of the race order. A zero radius uses
// DefaultGateRadius.
type AddGate struct {
	Position    physics.Vector3
	Orientation physics.Orientation
	Radius      float64
}

func (c AddGate) Name() string { return "add-gate" }

func (c AddGate) Apply(layout course.Layout) (course.Layout, error) {
	radius := c.Radius
	if radius == 0 {
		radius = DefaultGateRadius
	}
	if !c.Position.IsFinite() || !(radius > 0) || math.IsInf(radius, 0) {
		return layout, fmt.Errorf("%w: gate at %v radius %v", ErrInvalidValue, c.Position, radius)
	}

	next := layout.Clone()
	next.Gates = append(next.Gates, course.Gate{
		Index:       len(next.Gates),
		Position:    c.Position,
		Orientation: c.Orientation,
		Radius:      radius,
	})
	return next, nil
}

// AddObstacle appends an obstacle. Zero values use DefaultObstacleScale and
// the jagged model.
type AddObstacle struct {
	Position        physics.Vector3
	Orientation     physics.Orientation
	AngularVelocity physics.Vector3
	Scale           float64
	Variant         course.Variant
}

func (c AddObstacle) Name() string { return "add-obstacle" }

func (c AddObstacle) Apply(layout course.Layout) (course.Layout, error) {
	scale, variant := c.Scale, c.Variant
	if scale == 0 {
		scale = DefaultObstacleScale
	}
	if variant == 0 {
		variant = course.VariantJagged
	}
	if !c.Position.IsFinite() || !c.AngularVelocity.IsFinite() || !(scale > 0) || math.IsInf(scale, 0) {
		return layout, fmt.Errorf("%w: obstacle at %v scale %v", ErrInvalidValue, c.Position, scale)
	}
	if !variant.Valid() {
		return layout, fmt.Errorf("%w: model %d", ErrInvalidValue, int(variant))
	}

	next := layout.Clone()
	next.Obstacles = append(next.Obstacles, course.Obstacle{
		Position:        c.Position,
		Scale:           scale,
		Variant:         variant,
		Orientation:     c.Orientation,
		AngularVelocity: c.AngularVelocity,
	})
	return next, nil
}

// Delete removes the target. Later gates move up one place in the race
// order.
type Delete struct {
	Target Selection
}

func (c Delete) Name() string { return "delete" }

func (c Delete) Apply(layout course.Layout) (course.Layout, error) {
	if err := c.Target.check(layout); err != nil {
		return layout, err
	}

	next := layout.Clone()
	i := c.Target.Index
	switch c.Target.Kind {
	case KindGate:
		next.Gates = append(next.Gates[:i], next.Gates[i+1:]...)
		for j := range next.Gates {
			next.Gates[j].Index = j
		}
	case KindObstacle:
		next.Obstacles = append(next.Obstacles[:i], next.Obstacles[i+1:]...)
	}
	return next, nil
}

// GenerateField scatters Count random obstacles inside the course bounds.
// The same seed always produces the same field.
type GenerateField struct {
	Seed     int64
	Count    int
	MinScale float64
	MaxScale float64
}

func (c GenerateField) Name() string { return "generate-field" }

func (c GenerateField) Apply(layout course.Layout) (course.Layout, error) {
	count, minScale, maxScale := c.Count, c.MinScale, c.MaxScale
	if count == 0 {
		count = DefaultFieldCount
	}
	if minScale == 0 && maxScale == 0 {
		minScale, maxScale = DefaultFieldMinScale, DefaultFieldMaxScale
	}
	if count < 0 || !(minScale > 0) || maxScale < minScale || math.IsInf(maxScale, 0) {
		return layout, fmt.Errorf("%w: field of %d with scale %v..%v", ErrInvalidValue, count, minScale, maxScale)
	}

	bounds := layout.Bounds
	if bounds.IsZero() {
		bounds = course.DefaultBounds()
	}

	rng := rand.New(rand.NewSource(c.Seed))
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }
	variants := []course.Variant{course.VariantCube, course.VariantTetrahedron, course.VariantJagged}

	next := layout.Clone()
	for i := 0; i < count; i++ {
		position := physics.Vec3(
			uniform(-bounds.Width/2, bounds.Width/2),
			uniform(-bounds.Height/2, bounds.Height/2),
			uniform(-bounds.Depth/2, bounds.Depth/2),
		)
		axis := physics.Vec3(uniform(-1, 1), uniform(-1, 1), uniform(-1, 1))
		orientation, err := physics.FromAxisAngle(axis, uniform(0, 2*math.Pi))
		if err != nil {
			orientation = physics.Identity()
		}
		next.Obstacles = append(next.Obstacles, course.Obstacle{
			Position:        position,
			Scale:           uniform(minScale, maxScale),
			Variant:         variants[rng.Intn(len(variants))],
			Orientation:     orientation,
			AngularVelocity: physics.Vec3(uniform(0, maxFieldSpin), uniform(0, maxFieldSpin), uniform(0, maxFieldSpin)),
		})
	}
	return next, nil
}

// ResizeBounds grows or shrinks every boundary dimension by Delta, never
// going below MinBoundary
type ResizeBounds struct {
	Delta float64
}

func (c ResizeBounds) Name() string { return "resize-bounds" }

func (c ResizeBounds) Apply(layout course.Layout) (course.Layout, error) {
	if math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0) {
		return layout, fmt.Errorf("%w: boundary delta %v", ErrInvalidValue, c.Delta)
	}

	next := layout.Clone()
	if next.Bounds.IsZero() {
		next.Bounds = course.DefaultBounds()
	}
	next.Bounds.Width = math.Max(MinBoundary, next.Bounds.Width+c.Delta)
	next.Bounds.Height = math.Max(MinBoundary, next.Bounds.Height+c.Delta)
	next.Bounds.Depth = math.Max(MinBoundary, next.Bounds.Depth+c.Delta)
	return next, nil
}

// Rename changes the course name
type Rename struct {
	To string
}

func (c Rename) Name() string { return "rename" }

func (c Rename) Apply(layout course.Layout) (course.Layout, error) {
	name, err := validation.ValidateCourseName(c.To)
	if err != nil {
		return layout, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	next := layout.Clone()
	next.Name = name
	return next, nil
}

func updateTransform(layout course.Layout, target Selection, update func(Transform) Transform) (course.Layout, error) {
	current, err := TransformOf(layout, target)
	if err != nil {
		return layout, err
	}
	t := update(current)

	next := layout.Clone()
	switch target.Kind {
	case KindGate:
		next.Gates[target.Index].Position = t.Position
		next.Gates[target.Index].Orientation = t.Orientation
	case KindObstacle:
		next.Obstacles[target.Index].Position = t.Position
		next.Obstacles[target.Index].Orientation = t.Orientation
	}
	return next, nil
}
