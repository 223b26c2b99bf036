// pkg/editor/selection.go
package editor

import (
	"fmt"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// Kind tells which list of a layout a selection points into
type Kind int

const (
	KindGate Kind = iota + 1
	KindObstacle
)

func (k Kind) String() string {
	switch k {
	case KindGate:
		return "gate"
	case KindObstacle:
		return "obstacle"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "gate" or "obstacle"
func ParseKind(s string) (Kind, error) {
	switch s {
	case "gate":
		return KindGate, nil
	case "obstacle", "asteroid":
		return KindObstacle, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidSelection, s)
	}
}

// Selection identifies one gate or obstacle of a layout
type Selection struct {
	Kind  Kind
	Index int
}

// Gate selects the gate at index i
func Gate(i int) Selection { return Selection{Kind: KindGate, Index: i} }

// Obstacle selects the obstacle at index i
func Obstacle(i int) Selection { return Selection{Kind: KindObstacle, Index: i} }

func (s Selection) String() string {
	return fmt.Sprintf("%s %d", s.Kind, s.Index)
}

// check reports ErrInvalidSelection unless s points at an existing entity
func (s Selection) check(layout course.Layout) error {
	var n int
	switch s.Kind {
	case KindGate:
		n = len(layout.Gates)
	case KindObstacle:
		n = len(layout.Obstacles)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSelection, s)
	}
	if s.Index < 0 || s.Index >= n {
		return fmt.Errorf("%w: %s of %d", ErrInvalidSelection, s, n)
	}
	return nil
}

// Transform is the placement shared by gates and obstacles
type Transform struct {
	Position    physics.Vector3
	Orientation physics.Orientation
}

// TransformOf returns the placement of the selected entity
func TransformOf(layout course.Layout, s Selection) (Transform, error) {
	if err := s.check(layout); err != nil {
		return Transform{}, err
	}
	if s.Kind == KindGate {
		gate := layout.Gates[s.Index]
		return Transform{Position: gate.Position, Orientation: gate.Orientation}, nil
	}
	obstacle := layout.Obstacles[s.Index]
	return Transform{Position: obstacle.Position, Orientation: obstacle.Orientation}, nil
}
