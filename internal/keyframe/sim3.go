package keyframe

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sim3 is a similarity transform stored the way the SLAM backend transmits
// it: a quaternion whose squared norm is the scale, followed by a
// translation. The wire layout is [qx qy qz qw tx ty tz].
type Sim3 struct {
	Q quat.Number
	T r3.Vec
}

// IdentitySim3 returns the identity transform.
func IdentitySim3() Sim3 {
	return Sim3{Q: quat.Number{Real: 1}}
}

// NewSim3 builds a transform from a rotation (normalised here), a
// translation and a positive scale.
func NewSim3(rotation quat.Number, t r3.Vec, scale float64) Sim3 {
	n := quat.Abs(rotation)
	if n == 0 {
		rotation, n = quat.Number{Real: 1}, 1
	}
	return Sim3{
		Q: quat.Scale(math.Sqrt(scale)/n, rotation),
		T: t,
	}
}

// Sim3FromArray decodes the 7-float wire layout.
func Sim3FromArray(a [7]float32) Sim3 {
	return Sim3{
		Q: quat.Number{
			Real: float64(a[3]),
			Imag: float64(a[0]),
			Jmag: float64(a[1]),
			Kmag: float64(a[2]),
		},
		T: r3.Vec{X: float64(a[4]), Y: float64(a[5]), Z: float64(a[6])},
	}
}

// Array encodes the transform into the 7-float wire layout.
func (s Sim3) Array() [7]float32 {
	return [7]float32{
		float32(s.Q.Imag), float32(s.Q.Jmag), float32(s.Q.Kmag), float32(s.Q.Real),
		float32(s.T.X), float32(s.T.Y), float32(s.T.Z),
	}
}

// Scale returns the similarity scale (squared quaternion norm).
func (s Sim3) Scale() float64 {
	n := quat.Abs(s.Q)
	return n * n
}

// Rotation returns the unit rotation quaternion. A zero quaternion is
// reported as the identity rotation.
func (s Sim3) Rotation() quat.Number {
	n := quat.Abs(s.Q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, s.Q)
}

// Translation returns the camera centre in world coordinates.
func (s Sim3) Translation() r3.Vec {
	return s.T
}

// Transform maps p through scale, rotation and translation. Because the
// stored quaternion carries sqrt(scale) in its norm, q*p*conj(q) already
// yields scale*R*p.
func (s Sim3) Transform(p r3.Vec) r3.Vec {
	v := quat.Mul(quat.Mul(s.Q, quat.Number{Imag: p.X, Jmag: p.Y, Kmag: p.Z}), quat.Conj(s.Q))
	return r3.Add(r3.Vec{X: v.Imag, Y: v.Jmag, Z: v.Kmag}, s.T)
}
