package keyframe

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-6

func vecNear(a, b r3.Vec) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

func TestSim3ArrayRoundTrip(t *testing.T) {
	in := [7]float32{0.1, 0.2, 0.3, 0.9, 1, 2, 3}
	got := Sim3FromArray(in).Array()
	if got != in {
		t.Errorf("Array() = %v, want %v", got, in)
	}
}

func TestSim3Identity(t *testing.T) {
	s := IdentitySim3()
	p := r3.Vec{X: 1, Y: -2, Z: 3}
	if got := s.Transform(p); !vecNear(got, p) {
		t.Errorf("identity transform moved point: %v", got)
	}
	if s.Scale() != 1 {
		t.Errorf("identity scale = %v, want 1", s.Scale())
	}
}

func TestSim3ScaleFromQuaternionNorm(t *testing.T) {
	// |q| = sqrt(2) encodes scale 2.
	s := Sim3FromArray([7]float32{0, 0, 0, float32(math.Sqrt2), 0, 0, 0})
	if math.Abs(s.Scale()-2) > 1e-6 {
		t.Errorf("Scale() = %v, want 2", s.Scale())
	}
	rot := s.Rotation()
	if math.Abs(quat.Abs(rot)-1) > eps {
		t.Errorf("Rotation() not unit: %v", rot)
	}
}

func TestSim3Transform(t *testing.T) {
	// 90 degrees about Z, scale 2, translation (10, 0, 0).
	half := math.Pi / 4
	rot := quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
	s := NewSim3(rot, r3.Vec{X: 10}, 2)

	got := s.Transform(r3.Vec{X: 1})
	want := r3.Vec{X: 10, Y: 2}
	if !vecNear(got, want) {
		t.Errorf("Transform = %v, want %v", got, want)
	}
	if math.Abs(s.Scale()-2) > eps {
		t.Errorf("Scale() = %v, want 2", s.Scale())
	}
	if s.Translation() != (r3.Vec{X: 10}) {
		t.Errorf("Translation() = %v", s.Translation())
	}
}

func TestNewSim3ZeroRotation(t *testing.T) {
	s := NewSim3(quat.Number{}, r3.Vec{}, 1)
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	if got := s.Transform(p); !vecNear(got, p) {
		t.Errorf("zero rotation should fall back to identity, got %v", got)
	}
}
