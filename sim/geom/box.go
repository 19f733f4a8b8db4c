// Package geom holds the simulation box and rigid-body pose helpers shared by
// every HPMC component.
//
// Positions live in a box centered on the origin. Lattice vectors follow the
// upper-triangular convention:
//
//	a1 = (Lx, 0, 0)
//	a2 = (xy*Ly, Ly, 0)
//	a3 = (xz*Lz, yz*Lz, Lz)
//
// Fractional coordinates map the box onto [0,1)^D.
package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidBox is returned by Box.Validate for degenerate boxes.
var ErrInvalidBox = errors.New("invalid box")

// Box describes the simulation cell.
type Box struct {
	L          r3.Vec  // edge lengths Lx, Ly, Lz (Lz ignored in 2D)
	XY, XZ, YZ float64 // tilt factors
	Periodic   [3]bool
	Dimensions int // 2 or 3
}

// NewBox returns a fully periodic orthorhombic 3D box.
func NewBox(lx, ly, lz float64) Box {
	return Box{
		L:          r3.Vec{X: lx, Y: ly, Z: lz},
		Periodic:   [3]bool{true, true, true},
		Dimensions: 3,
	}
}

// NewBox2D returns a 2D box periodic in x and y.
func NewBox2D(lx, ly float64) Box {
	return Box{
		L:          r3.Vec{X: lx, Y: ly, Z: 1},
		Periodic:   [3]bool{true, true, false},
		Dimensions: 2,
	}
}

// NewTriclinicBox returns a fully periodic 3D box with tilt factors.
func NewTriclinicBox(lx, ly, lz, xy, xz, yz float64) Box {
	b := NewBox(lx, ly, lz)
	b.XY, b.XZ, b.YZ = xy, xz, yz
	return b
}

// Validate checks that the box is usable.
func (b Box) Validate() error {
	if b.Dimensions != 2 && b.Dimensions != 3 {
		return fmt.Errorf("%w: dimensions must be 2 or 3, got %d", ErrInvalidBox, b.Dimensions)
	}
	lengths := []float64{b.L.X, b.L.Y}
	if b.Dimensions == 3 {
		lengths = append(lengths, b.L.Z)
	}
	for i, l := range lengths {
		if math.IsNaN(l) || math.IsInf(l, 0) || l <= 0 {
			return fmt.Errorf("%w: L[%d] must be positive and finite, got %f", ErrInvalidBox, i, l)
		}
	}
	for _, t := range []float64{b.XY, b.XZ, b.YZ} {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: tilt factors must be finite", ErrInvalidBox)
		}
	}
	if b.Dimensions == 2 && (b.XZ != 0 || b.YZ != 0 || b.Periodic[2]) {
		return fmt.Errorf("%w: 2D boxes cannot tilt or wrap along z", ErrInvalidBox)
	}
	return nil
}

// Volume returns the box volume (area in 2D).
func (b Box) Volume() float64 {
	if b.Dimensions == 2 {
		return b.L.X * b.L.Y
	}
	return b.L.X * b.L.Y * b.L.Z
}

// IsOrthorhombic reports whether all tilt factors vanish.
func (b Box) IsOrthorhombic() bool {
	return b.XY == 0 && b.XZ == 0 && b.YZ == 0
}

// LatticeVectors returns a1, a2, a3. In 2D a3 is the zero vector.
func (b Box) LatticeVectors() (a1, a2, a3 r3.Vec) {
	a1 = r3.Vec{X: b.L.X}
	a2 = r3.Vec{X: b.XY * b.L.Y, Y: b.L.Y}
	if b.Dimensions == 3 {
		a3 = r3.Vec{X: b.XZ * b.L.Z, Y: b.YZ * b.L.Z, Z: b.L.Z}
	}
	return a1, a2, a3
}

func (b Box) lo() r3.Vec {
	a1, a2, a3 := b.LatticeVectors()
	return r3.Scale(-0.5, r3.Add(r3.Add(a1, a2), a3))
}

// toLattice expresses a displacement in lattice coordinates.
func (b Box) toLattice(d r3.Vec) r3.Vec {
	var g r3.Vec
	if b.Dimensions == 3 {
		g.Z = d.Z / b.L.Z
	}
	g.Y = (d.Y - b.YZ*b.L.Z*g.Z) / b.L.Y
	g.X = (d.X - b.XY*b.L.Y*g.Y - b.XZ*b.L.Z*g.Z) / b.L.X
	return g
}

// fromLattice is the inverse of toLattice.
func (b Box) fromLattice(g r3.Vec) r3.Vec {
	a1, a2, a3 := b.LatticeVectors()
	return r3.Add(r3.Add(r3.Scale(g.X, a1), r3.Scale(g.Y, a2)), r3.Scale(g.Z, a3))
}

// Fractional maps a position to fractional coordinates. Positions inside the
// box map into [0,1)^D; in 2D the z component is always 0.
func (b Box) Fractional(x r3.Vec) r3.Vec {
	return b.toLattice(r3.Sub(x, b.lo()))
}

// FromFractional maps fractional coordinates back to a position.
func (b Box) FromFractional(f r3.Vec) r3.Vec {
	if b.Dimensions == 2 {
		f.Z = 0
	}
	return r3.Add(b.lo(), b.fromLattice(f))
}

// Shift returns the lattice translation n1*a1 + n2*a2 + n3*a3.
func (b Box) Shift(image [3]int) r3.Vec {
	return b.fromLattice(r3.Vec{X: float64(image[0]), Y: float64(image[1]), Z: float64(image[2])})
}

// Wrap folds x back into the box along periodic directions. It returns the
// wrapped position and the image such that wrapped = x + Shift(image).
func (b Box) Wrap(x r3.Vec) (r3.Vec, [3]int) {
	f := b.Fractional(x)
	fs := [3]float64{f.X, f.Y, f.Z}
	var image [3]int
	for d := 0; d < b.Dimensions; d++ {
		if !b.Periodic[d] {
			continue
		}
		n := math.Floor(fs[d])
		image[d] = -int(n)
	}
	if image == ([3]int{}) {
		return x, image
	}
	w := r3.Add(x, b.Shift(image))
	// guard against round-off landing exactly on the upper face
	wf := b.Fractional(w)
	wfs := [3]float64{wf.X, wf.Y, wf.Z}
	for d := 0; d < b.Dimensions; d++ {
		if b.Periodic[d] && wfs[d] >= 1 {
			image[d]--
		}
	}
	return r3.Add(x, b.Shift(image)), image
}

// MinImage returns the periodic image of displacement d with lattice
// coordinates in [-1/2, 1/2].
func (b Box) MinImage(d r3.Vec) r3.Vec {
	g := b.toLattice(d)
	gs := [3]float64{g.X, g.Y, g.Z}
	var image [3]int
	changed := false
	for k := 0; k < b.Dimensions; k++ {
		if b.Periodic[k] {
			image[k] = -int(math.Round(gs[k]))
			changed = changed || image[k] != 0
		}
	}
	if !changed {
		return d
	}
	return r3.Add(d, b.Shift(image))
}

// NearestPlaneDistance returns the perpendicular distance between opposite
// faces of the box along each lattice direction.
func (b Box) NearestPlaneDistance() r3.Vec {
	a1, a2, a3 := b.LatticeVectors()
	if b.Dimensions == 2 {
		area := b.L.X * b.L.Y
		return r3.Vec{
			X: area / r3.Norm(a2),
			Y: area / r3.Norm(a1),
			Z: 1,
		}
	}
	v := b.Volume()
	return r3.Vec{
		X: v / r3.Norm(r3.Cross(a2, a3)),
		Y: v / r3.Norm(r3.Cross(a3, a1)),
		Z: v / r3.Norm(r3.Cross(a1, a2)),
	}
}

// ImagesWithin returns every lattice image n such that |d + Shift(n)| <= radius.
// Non-periodic directions only contribute n = 0.
func (b Box) ImagesWithin(d r3.Vec, radius float64) [][3]int {
	g := b.toLattice(d)
	gs := [3]float64{g.X, g.Y, g.Z}
	pd := b.NearestPlaneDistance()
	pds := [3]float64{pd.X, pd.Y, pd.Z}
	var lo, hi [3]int
	for k := 0; k < 3; k++ {
		if k >= b.Dimensions || !b.Periodic[k] {
			continue
		}
		reach := radius / pds[k]
		lo[k] = int(math.Ceil(-gs[k] - reach))
		hi[k] = int(math.Floor(-gs[k] + reach))
	}
	r2 := radius * radius
	var out [][3]int
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for k := lo[2]; k <= hi[2]; k++ {
				n := [3]int{i, j, k}
				if r3.Norm2(r3.Add(d, b.Shift(n))) <= r2 {
					out = append(out, n)
				}
			}
		}
	}
	return out
}

// PreservesLattice reports whether the linear map m sends every periodic
// lattice vector to a lattice vector.
func (b Box) PreservesLattice(m func(r3.Vec) r3.Vec) bool {
	const tol = 1e-9
	a1, a2, a3 := b.LatticeVectors()
	for k, a := range []r3.Vec{a1, a2, a3} {
		if k >= b.Dimensions || !b.Periodic[k] {
			continue
		}
		g := b.toLattice(m(a))
		for _, c := range []float64{g.X, g.Y, g.Z} {
			if math.Abs(c-math.Round(c)) > tol {
				return false
			}
		}
	}
	return true
}

// Interpolate returns the box whose lengths and tilts are a + t*(c - a).
// Periodicity and dimensionality are taken from a.
func Interpolate(a, c Box, t float64) Box {
	lerp := func(x, y float64) float64 { return x + t*(y-x) }
	out := a
	out.L = r3.Vec{X: lerp(a.L.X, c.L.X), Y: lerp(a.L.Y, c.L.Y), Z: lerp(a.L.Z, c.L.Z)}
	out.XY = lerp(a.XY, c.XY)
	out.XZ = lerp(a.XZ, c.XZ)
	out.YZ = lerp(a.YZ, c.YZ)
	return out
}
