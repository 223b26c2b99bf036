// pkg/physics/vector_test.go
package physics

import (
	"errors"
	"math"
	"testing"
)

func TestVector3_Add(t *testing.T) {
	tests := []struct {
		name     string
		v1       Vector3
		v2       Vector3
		expected Vector3
	}{
		{
			name:     "positive_vectors",
			v1:       Vector3{X: 3, Y: 4, Z: 5},
			v2:       Vector3{X: 1, Y: 2, Z: 3},
			expected: Vector3{X: 4, Y: 6, Z: 8},
		},
		{
			name:     "mixed_signs",
			v1:       Vector3{X: 5, Y: -3, Z: 0},
			v2:       Vector3{X: -2, Y: 7, Z: -1},
			expected: Vector3{X: 3, Y: 4, Z: -1},
		},
		{
			name:     "zero_vector",
			v1:       Vector3{},
			v2:       Vector3{X: 5, Y: -3, Z: 2},
			expected: Vector3{X: 5, Y: -3, Z: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.v1.Add(tt.v2)
			if result != tt.expected {
				t.Errorf("Add() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestVector3_SubScaleDot(t *testing.T) {
	a := Vector3{X: 1, Y: 2, Z: 3}
	b := Vector3{X: 4, Y: -5, Z: 6}

	if got := b.Sub(a); got != (Vector3{X: 3, Y: -7, Z: 3}) {
		t.Errorf("Sub() = %v", got)
	}
	if got := a.Scale(-2); got != (Vector3{X: -2, Y: -4, Z: -6}) {
		t.Errorf("Scale() = %v", got)
	}
	if got := a.Dot(b); got != 12 {
		t.Errorf("Dot() = %v, expected 12", got)
	}
}

func TestVector3_Cross(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector3
		expected Vector3
	}{
		{"x_cross_y", AxisX, AxisY, AxisZ},
		{"y_cross_z", AxisY, AxisZ, AxisX},
		{"z_cross_x", AxisZ, AxisX, AxisY},
		{"parallel", Vector3{X: 2}, Vector3{X: 5}, Vector3{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.a.Cross(tt.b)
			if !result.ApproxEqual(tt.expected, 1e-12) {
				t.Errorf("Cross() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestVector3_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		input     Vector3
		expected  Vector3
		wantError bool
	}{
		{"axis_aligned", Vector3{Z: 10}, Vector3{Z: 1}, false},
		{"diagonal", Vector3{X: 3, Y: 4}, Vector3{X: 0.6, Y: 0.8}, false},
		{"zero_vector", Vector3{}, Vector3{}, true},
		{"below_epsilon", Vector3{X: 1e-9}, Vector3{}, true},
		{"nan", Vector3{X: math.NaN()}, Vector3{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Normalize()
			if tt.wantError {
				if !errors.Is(err, ErrDegenerateVector) {
					t.Fatalf("Normalize() error = %v, expected ErrDegenerateVector", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if !result.ApproxEqual(tt.expected, 1e-12) {
				t.Errorf("Normalize() = %v, expected %v", result, tt.expected)
			}
			if math.Abs(result.Length()-1) > 1e-12 {
				t.Errorf("Normalize() length = %v, expected 1", result.Length())
			}
		})
	}
}

func TestVector3_ClampLength(t *testing.T) {
	v := Vector3{X: 30, Y: 40}

	if got := v.ClampLength(0); got != v {
		t.Errorf("zero limit should disable clamp, got %v", got)
	}
	if got := v.ClampLength(100); got != v {
		t.Errorf("vector under the limit should be unchanged, got %v", got)
	}
	got := v.ClampLength(5)
	if math.Abs(got.Length()-5) > 1e-12 {
		t.Errorf("clamped length = %v, expected 5", got.Length())
	}
	if !got.ApproxEqual(Vector3{X: 3, Y: 4}, 1e-12) {
		t.Errorf("clamp should keep direction, got %v", got)
	}
}

func TestVector3_IsFinite(t *testing.T) {
	if !(Vector3{X: 1, Y: 2, Z: 3}).IsFinite() {
		t.Error("expected finite vector")
	}
	if (Vector3{Y: math.Inf(1)}).IsFinite() {
		t.Error("expected +Inf to be rejected")
	}
	if (Vector3{Z: math.NaN()}).IsFinite() {
		t.Error("expected NaN to be rejected")
	}
}

func TestFromSlice(t *testing.T) {
	v, ok := FromSlice([]float64{1, 2, 3})
	if !ok || v != (Vector3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("FromSlice() = %v, %v", v, ok)
	}
	if _, ok := FromSlice([]float64{1, 2}); ok {
		t.Error("expected short slice to be rejected")
	}
}
