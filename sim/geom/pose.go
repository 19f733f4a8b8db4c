package geom

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// UnitTolerance bounds |1 - |q|| for an orientation to count as a unit quaternion.
const UnitTolerance = 1e-6

// Pose is a rigid-body placement: position plus orientation.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Identity returns the identity rotation.
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// IsUnit reports whether q is a unit quaternion within UnitTolerance.
func IsUnit(q quat.Number) bool {
	return math.Abs(quat.Abs(q)-1) <= UnitTolerance
}

// IsPlanar reports whether q is a rotation about the z axis only.
func IsPlanar(q quat.Number) bool {
	return math.Abs(q.Imag) <= UnitTolerance && math.Abs(q.Jmag) <= UnitTolerance
}

// Normalize rescales q to unit length.
func Normalize(q quat.Number) quat.Number {
	return quat.Scale(1/quat.Abs(q), q)
}

// AxisAngle returns the unit quaternion rotating by angle about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	u := r3.Unit(axis)
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: s * u.X, Jmag: s * u.Y, Kmag: s * u.Z}
}

// Rotate applies the rotation q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	u := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	t := r3.Scale(2, r3.Cross(u, v))
	return r3.Add(r3.Add(v, r3.Scale(q.Real, t)), r3.Cross(u, t))
}

// RotateInverse applies the inverse of the unit rotation q to v.
func RotateInverse(q quat.Number, v r3.Vec) r3.Vec {
	return Rotate(quat.Conj(q), v)
}

// Compose returns the rotation that applies b first, then a.
func Compose(a, b quat.Number) quat.Number {
	return quat.Mul(a, b)
}

// RandomUnitVector draws a direction uniformly on the sphere (circle in 2D).
func RandomUnitVector(rng *rand.Rand, dims int) r3.Vec {
	if dims == 2 {
		s, c := math.Sincos(2 * math.Pi * rng.Float64())
		return r3.Vec{X: c, Y: s}
	}
	// Marsaglia (1972)
	for {
		x1 := 2*rng.Float64() - 1
		x2 := 2*rng.Float64() - 1
		s := x1*x1 + x2*x2
		if s >= 1 {
			continue
		}
		f := 2 * math.Sqrt(1-s)
		return r3.Vec{X: x1 * f, Y: x2 * f, Z: 1 - 2*s}
	}
}

// RandomInBall draws a point uniformly in the ball (disk in 2D) of radius r.
func RandomInBall(rng *rand.Rand, dims int, r float64) r3.Vec {
	for {
		v := r3.Vec{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1}
		if dims == 3 {
			v.Z = 2*rng.Float64() - 1
		}
		if r3.Norm2(v) <= 1 {
			return r3.Scale(r, v)
		}
	}
}

// RandomOrientation draws an orientation uniformly from SO(3), or a uniform
// rotation about z in 2D.
func RandomOrientation(rng *rand.Rand, dims int) quat.Number {
	if dims == 2 {
		return AxisAngle(r3.Vec{Z: 1}, 2*math.Pi*rng.Float64())
	}
	// Shoemake's subgroup algorithm
	u1, u2, u3 := rng.Float64(), 2*math.Pi*rng.Float64(), 2*math.Pi*rng.Float64()
	a, b := math.Sqrt(1-u1), math.Sqrt(u1)
	return quat.Number{
		Real: b * math.Cos(u3),
		Imag: a * math.Sin(u2),
		Jmag: a * math.Cos(u2),
		Kmag: b * math.Sin(u3),
	}
}
