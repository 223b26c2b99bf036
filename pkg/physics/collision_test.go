// pkg/physics/collision_test.go
package physics

import (
	"math"
	"testing"
)

func TestCheckGatePassage(t *testing.T) {
	gate := Disc{Center: Vector3{}, Normal: AxisZ, Radius: 5}

	tests := []struct {
		name     string
		prev     Vector3
		curr     Vector3
		gate     Disc
		expected bool
	}{
		{"straight_through_center", Vector3{Z: -1}, Vector3{Z: 1}, gate, true},
		{"reverse_direction", Vector3{Z: 1}, Vector3{Z: -1}, gate, true},
		{"inside_radius_offset", Vector3{X: 3, Y: 3, Z: -1}, Vector3{X: 3, Y: 3, Z: 1}, gate, true},
		{"exactly_on_rim", Vector3{X: 5, Z: -1}, Vector3{X: 5, Z: 1}, gate, true},
		{"outside_radius", Vector3{X: 6, Z: -1}, Vector3{X: 6, Z: 1}, gate, false},
		{"no_crossing_same_side", Vector3{Z: -3}, Vector3{Z: -1}, gate, false},
		{"parallel_to_plane", Vector3{X: -1, Z: 0.5}, Vector3{X: 1, Z: 0.5}, gate, false},
		{"ends_on_plane", Vector3{Z: -1}, Vector3{}, gate, false},
		{"leaves_plane_side_unknown", Vector3{}, Vector3{Z: 1}, gate, false},
		{"touch_and_retreat", Vector3{}, Vector3{Z: -1}, gate, false},
		{"fast_tunnel", Vector3{Z: -1000}, Vector3{Z: 1000}, gate, true},
		{"diagonal_hit_inside", Vector3{X: -4, Z: -1}, Vector3{X: 4, Z: 1}, gate, true},
		{"diagonal_hit_outside", Vector3{X: 2, Z: -1}, Vector3{X: 12, Z: 1}, gate, false},
		{
			"rotated_gate",
			Vector3{X: -1, Y: 10},
			Vector3{X: 1, Y: 10},
			Disc{Center: Vector3{Y: 10}, Normal: AxisX, Radius: 2},
			true,
		},
		{"unnormalized_normal", Vector3{Z: -1}, Vector3{Z: 1}, Disc{Normal: Vector3{Z: 7}, Radius: 5}, true},
		{"degenerate_normal", Vector3{Z: -1}, Vector3{Z: 1}, Disc{Radius: 5}, false},
		{"zero_radius", Vector3{Z: -1}, Vector3{Z: 1}, Disc{Normal: AxisZ}, false},
		{"nan_position", Vector3{Z: math.NaN()}, Vector3{Z: 1}, gate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckGatePassage(tt.prev, tt.curr, tt.gate); got != tt.expected {
				t.Errorf("CheckGatePassage() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestCheckGatePassageFrom(t *testing.T) {
	gate := Disc{Center: Vector3{}, Normal: AxisZ, Radius: 5}

	tests := []struct {
		name     string
		prev     Vector3
		curr     Vector3
		approach float64
		expected bool
	}{
		{"leaves_to_far_side", Vector3{}, Vector3{Z: 1}, -1, true},
		{"leaves_to_far_side_reversed", Vector3{}, Vector3{Z: -1}, 1, true},
		{"touch_and_retreat", Vector3{}, Vector3{Z: -1}, -1, false},
		{"touch_and_retreat_reversed", Vector3{}, Vector3{Z: 1}, 1, false},
		{"side_unknown", Vector3{}, Vector3{Z: 1}, 0, false},
		{"stays_on_plane", Vector3{}, Vector3{X: 1}, -1, false},
		{"leaves_outside_radius", Vector3{X: 6}, Vector3{X: 6, Z: 1}, -1, false},
		{"approach_ignored_off_plane", Vector3{Z: -1}, Vector3{Z: 1}, 1, true},
		{"approach_ignored_same_side", Vector3{Z: 1}, Vector3{Z: 2}, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckGatePassageFrom(tt.prev, tt.curr, gate, tt.approach); got != tt.expected {
				t.Errorf("CheckGatePassageFrom() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// A craft that stops on the plane and turns back must not count, whichever
// side it came from
func TestCheckGatePassageFrom_TouchSequence(t *testing.T) {
	gate := Disc{Center: Vector3{Z: 10}, Normal: AxisZ, Radius: 5}
	path := []Vector3{{Z: 9}, {Z: 10}, {Z: 9}, {Z: 10}, {Z: 11}}

	var passes []int
	approach := 0.0
	for i := 1; i < len(path); i++ {
		if s := gate.Side(path[i-1]); s != 0 {
			approach = s
		}
		if CheckGatePassageFrom(path[i-1], path[i], gate, approach) {
			passes = append(passes, i)
		}
	}
	if len(passes) != 1 || passes[0] != 4 {
		t.Errorf("passes on segments %v, expected only segment 4", passes)
	}
}

func TestDisc_Side(t *testing.T) {
	gate := Disc{Center: Vector3{Z: 10}, Normal: Vector3{Z: 3}, Radius: 5}
	if got := gate.Side(Vector3{Z: 12}); got != 1 {
		t.Errorf("Side(front) = %v", got)
	}
	if got := gate.Side(Vector3{X: 100, Z: 2}); got != -1 {
		t.Errorf("Side(behind) = %v", got)
	}
	if got := gate.Side(Vector3{Y: 7, Z: 10}); got != 0 {
		t.Errorf("Side(on plane) = %v", got)
	}
	if got := (Disc{Radius: 1}).Side(Vector3{Z: 1}); got != 0 {
		t.Errorf("Side(degenerate normal) = %v", got)
	}
}

func TestCheckObstacleCollision(t *testing.T) {
	obstacle := Sphere{Center: Vector3{}, Radius: 1}

	tests := []struct {
		name     string
		pos      Vector3
		radius   float64
		expected bool
	}{
		{"overlapping", Vector3{X: 1.5}, 1, true},
		{"touching", Vector3{X: 2}, 1, false},
		{"separated", Vector3{X: 2.5}, 1, false},
		{"inside", Vector3{}, 1, true},
		{"diagonal_overlap", Vector3{X: 1, Y: 1, Z: 1}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckObstacleCollision(tt.pos, tt.radius, obstacle); got != tt.expected {
				t.Errorf("CheckObstacleCollision() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestCheckContact(t *testing.T) {
	a := Sphere{Center: Vector3{}, Radius: 1}
	b := Sphere{Center: Vector3{X: 1.5}, Radius: 1}

	contact := CheckContact(a, b)
	if !contact.Collided {
		t.Fatal("expected contact")
	}
	if math.Abs(contact.Penetration-0.5) > 1e-12 {
		t.Errorf("Penetration = %v, expected 0.5", contact.Penetration)
	}
	if !contact.Normal.ApproxEqual(AxisX, 1e-12) {
		t.Errorf("Normal = %v, expected +X", contact.Normal)
	}
	if !contact.ContactPoint.ApproxEqual(AxisX, 1e-12) {
		t.Errorf("ContactPoint = %v, expected (1,0,0)", contact.ContactPoint)
	}

	if CheckContact(a, Sphere{Center: Vector3{Y: 3}, Radius: 1}).Collided {
		t.Error("expected no contact for separated spheres")
	}

	concentric := CheckContact(a, Sphere{Radius: 0.5})
	if !concentric.Collided || !concentric.Normal.ApproxEqual(AxisY, 1e-12) {
		t.Errorf("concentric contact = %+v", concentric)
	}
}
