package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Lattice returns n positions on a regular lattice filling box: k points per
// axis at fractional coordinates (i+1/2)/k, with k the smallest integer such
// that k^dims >= n. Points are emitted in x-fastest order.
func Lattice(box Box, n int) []r3.Vec {
	dims := box.Dimensions
	// the float root can land a hair above an exact integer, so settle k
	// from a rounded guess in both directions
	k := max(int(math.Round(math.Pow(float64(n), 1/float64(dims)))), 1)
	for k > 1 && ipow(k-1, dims) >= n {
		k--
	}
	for ipow(k, dims) < n {
		k++
	}
	out := make([]r3.Vec, 0, n)
	for idx := 0; len(out) < n; idx++ {
		f := r3.Vec{
			X: (float64(idx%k) + 0.5) / float64(k),
			Y: (float64(idx/k%k) + 0.5) / float64(k),
		}
		if dims == 3 {
			f.Z = (float64(idx/(k*k)) + 0.5) / float64(k)
		}
		out = append(out, box.FromFractional(f))
	}
	return out
}

func ipow(k, d int) int {
	p := 1
	for i := 0; i < d; i++ {
		p *= k
	}
	return p
}
