package editor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/physics"
)

func testLayout() course.Layout {
	return course.Layout{
		Name:   "editor",
		Bounds: course.Bounds{Width: 4000, Height: 2000, Depth: 6000},
		Gates: []course.Gate{
			{Index: 0, Position: physics.Vec3(0, 0, 1000), Radius: 300},
			{Index: 1, Position: physics.Vec3(0, 0, 2000), Radius: 300},
			{Index: 2, Position: physics.Vec3(500, 0, 3000), Radius: 300},
		},
		Obstacles: []course.Obstacle{
			{Position: physics.Vec3(200, 0, 1500), Scale: 100, Variant: course.VariantCube},
		},
	}
}

// applyKeepsInput applies cmd and checks the input layout was not touched
func applyKeepsInput(t *testing.T, cmd Command) course.Layout {
	t.Helper()
	input := testLayout()
	before := input.Clone()

	next, err := cmd.Apply(input)
	require.NoError(t, err)
	assert.Equal(t, before, input, "%s modified its input", cmd.Name())
	return next
}

func TestMove(t *testing.T) {
	next := applyKeepsInput(t, Move{Target: Gate(1), Offset: physics.Vec3(10, 20, 30)})
	assert.Equal(t, physics.Vec3(10, 20, 2030), next.Gates[1].Position)

	next = applyKeepsInput(t, Move{Target: Obstacle(0), Offset: physics.Vec3(-200, 0, 0)})
	assert.Equal(t, physics.Vec3(0, 0, 1500), next.Obstacles[0].Position)
}

func TestRotate(t *testing.T) {
	next := applyKeepsInput(t, Rotate{Target: Gate(0), Axis: physics.AxisY, Angle: math.Pi / 2})
	assert.True(t, next.Gates[0].Normal().ApproxEqual(physics.Vec3(1, 0, 0), 1e-9),
		"normal after yaw: %v", next.Gates[0].Normal())

	// Successive rotations compose in world space
	layout, err := Rotate{Target: Gate(0), Axis: physics.AxisY, Angle: math.Pi / 2}.Apply(next)
	require.NoError(t, err)
	assert.True(t, layout.Gates[0].Normal().ApproxEqual(physics.Vec3(0, 0, -1), 1e-9))
}

func TestScale(t *testing.T) {
	next := applyKeepsInput(t, Scale{Target: Obstacle(0), Delta: ScaleStep})
	assert.Equal(t, 120.0, next.Obstacles[0].Scale)

	next = applyKeepsInput(t, Scale{Target: Obstacle(0), Delta: -1000})
	assert.Equal(t, MinScale, next.Obstacles[0].Scale)

	next = applyKeepsInput(t, Scale{Target: Gate(2), Delta: -ScaleStep})
	assert.Equal(t, 280.0, next.Gates[2].Radius)
}

func TestChangeModel(t *testing.T) {
	next := applyKeepsInput(t, ChangeModel{Target: Obstacle(0), Variant: course.VariantTetrahedron})
	assert.Equal(t, course.VariantTetrahedron, next.Obstacles[0].Variant)

	_, err := ChangeModel{Target: Gate(0), Variant: course.VariantCube}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrWrongKind)

	_, err = ChangeModel{Target: Obstacle(0), Variant: 9}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestAddGate(t *testing.T) {
	next := applyKeepsInput(t, AddGate{Position: physics.Vec3(0, 0, 4000)})
	require.Len(t, next.Gates, 4)
	assert.Equal(t, 3, next.Gates[3].Index)
	assert.Equal(t, DefaultGateRadius, next.Gates[3].Radius)

	_, err := AddGate{Position: physics.Vec3(math.NaN(), 0, 0)}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = AddGate{Radius: -1}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestAddObstacle(t *testing.T) {
	next := applyKeepsInput(t, AddObstacle{Position: physics.Vec3(1, 2, 3)})
	require.Len(t, next.Obstacles, 2)
	added := next.Obstacles[1]
	assert.Equal(t, DefaultObstacleScale, added.Scale)
	assert.Equal(t, course.VariantJagged, added.Variant)
	assert.Equal(t, physics.Vec3(1, 2, 3), added.Position)
}

func TestDelete(t *testing.T) {
	next := applyKeepsInput(t, Delete{Target: Gate(0)})
	require.Len(t, next.Gates, 2)
	assert.Equal(t, physics.Vec3(0, 0, 2000), next.Gates[0].Position)
	assert.Equal(t, 0, next.Gates[0].Index)
	assert.Equal(t, 1, next.Gates[1].Index)

	next = applyKeepsInput(t, Delete{Target: Obstacle(0)})
	assert.Empty(t, next.Obstacles)
}

func TestGenerateField(t *testing.T) {
	next := applyKeepsInput(t, GenerateField{Seed: 42})
	require.Len(t, next.Obstacles, 1+DefaultFieldCount)

	bounds := testLayout().Bounds
	for _, o := range next.Obstacles[1:] {
		assert.True(t, o.Variant.Valid())
		assert.GreaterOrEqual(t, o.Scale, DefaultFieldMinScale)
		assert.LessOrEqual(t, o.Scale, DefaultFieldMaxScale)
		assert.LessOrEqual(t, math.Abs(o.Position.X), bounds.Width/2)
		assert.LessOrEqual(t, math.Abs(o.Position.Y), bounds.Height/2)
		assert.LessOrEqual(t, math.Abs(o.Position.Z), bounds.Depth/2)
		assert.InDelta(t, 1, o.Orientation.Norm(), 1e-9)
	}

	again := applyKeepsInput(t, GenerateField{Seed: 42})
	assert.Equal(t, next, again, "same seed must give the same field")

	other := applyKeepsInput(t, GenerateField{Seed: 7})
	assert.NotEqual(t, next.Obstacles[1].Position, other.Obstacles[1].Position)

	small := applyKeepsInput(t, GenerateField{Seed: 1, Count: 3, MinScale: 10, MaxScale: 20})
	assert.Len(t, small.Obstacles, 4)

	_, err := GenerateField{Count: -1}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = GenerateField{MinScale: 50, MaxScale: 10}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestResizeBounds(t *testing.T) {
	next := applyKeepsInput(t, ResizeBounds{Delta: BoundaryStep})
	assert.Equal(t, course.Bounds{Width: 5000, Height: 3000, Depth: 7000}, next.Bounds)

	next = applyKeepsInput(t, ResizeBounds{Delta: -2500})
	assert.Equal(t, course.Bounds{Width: 1500, Height: MinBoundary, Depth: 3500}, next.Bounds)

	unset, err := ResizeBounds{Delta: BoundaryStep}.Apply(course.Layout{})
	require.NoError(t, err)
	assert.Equal(t, course.DefaultBoundary+BoundaryStep, unset.Bounds.Width)
}

func TestRename(t *testing.T) {
	next := applyKeepsInput(t, Rename{To: "  Canyon Run  "})
	assert.Equal(t, "Canyon Run", next.Name)

	_, err := Rename{To: ""}.Apply(testLayout())
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCommands_RejectInvalidSelection(t *testing.T) {
	commands := []Command{
		Move{Target: Gate(3)},
		Rotate{Target: Obstacle(1), Axis: physics.AxisX, Angle: 1},
		Scale{Target: Gate(-1), Delta: 1},
		ChangeModel{Target: Obstacle(5), Variant: course.VariantCube},
		Delete{Target: Selection{Kind: 0, Index: 0}},
	}
	for _, cmd := range commands {
		t.Run(cmd.Name(), func(t *testing.T) {
			_, err := cmd.Apply(testLayout())
			assert.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestCommands_RejectNonFiniteArguments(t *testing.T) {
	nan := math.NaN()
	commands := []Command{
		Move{Target: Gate(0), Offset: physics.Vec3(nan, 0, 0)},
		Rotate{Target: Gate(0), Axis: physics.AxisX, Angle: math.Inf(1)},
		Rotate{Target: Gate(0), Axis: physics.Vector3{}, Angle: 1},
		Scale{Target: Gate(0), Delta: nan},
		ResizeBounds{Delta: nan},
	}
	for _, cmd := range commands {
		_, err := cmd.Apply(testLayout())
		assert.ErrorIs(t, err, ErrInvalidValue, cmd.Name())
	}
}

func TestTransformOf(t *testing.T) {
	tr, err := TransformOf(testLayout(), Obstacle(0))
	require.NoError(t, err)
	assert.Equal(t, physics.Vec3(200, 0, 1500), tr.Position)

	_, err = TransformOf(testLayout(), Gate(9))
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("gate")
	require.NoError(t, err)
	assert.Equal(t, KindGate, k)

	k, err = ParseKind("asteroid")
	require.NoError(t, err)
	assert.Equal(t, KindObstacle, k)

	_, err = ParseKind("planet")
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.Equal(t, "obstacle 2", Obstacle(2).String())
}
