// Package index provides spatial lookup structures for the HPMC engine: a
// regular grid over fractional box coordinates with checkerboard coloring,
// and a periodic cell list for neighbor candidate queries.
package index

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// Cell is an integer grid coordinate.
type Cell [3]int

// Grid divides the unit fractional cube into N[0] x N[1] x N[2] cells,
// translated by Offset (in fractional units). Only the first Dims axes are
// used.
type Grid struct {
	Dims     int
	N        [3]int
	Offset   r3.Vec
	Periodic [3]bool
}

// NewGrid returns a grid with cells at least minWidth wide (perpendicular to
// each face) in box. When even is set, periodic axes with more than one cell
// are rounded down to an even count so checkerboard colors never touch
// across the boundary.
func NewGrid(box geom.Box, minWidth float64, even bool) (Grid, error) {
	if !(minWidth > 0) {
		return Grid{}, fmt.Errorf("grid cell width must be positive, got %f", minWidth)
	}
	pd := box.NearestPlaneDistance()
	pds := [3]float64{pd.X, pd.Y, pd.Z}
	g := Grid{Dims: box.Dimensions, N: [3]int{1, 1, 1}, Periodic: box.Periodic}
	for d := 0; d < box.Dimensions; d++ {
		n := int(math.Floor(pds[d] / minWidth))
		if n < 1 {
			n = 1
		}
		if even && box.Periodic[d] && n > 1 && n%2 == 1 {
			n--
		}
		g.N[d] = n
	}
	return g, nil
}

// Len is the number of cells.
func (g Grid) Len() int {
	return g.N[0] * g.N[1] * g.N[2]
}

// Cell returns the cell containing fractional coordinate f.
func (g Grid) Cell(f r3.Vec) Cell {
	fs := [3]float64{f.X - g.Offset.X, f.Y - g.Offset.Y, f.Z - g.Offset.Z}
	var c Cell
	for d := 0; d < g.Dims; d++ {
		k := int(math.Floor(fs[d] * float64(g.N[d])))
		c[d] = g.fold(d, k)
	}
	return c
}

// fold maps a raw index into [0, N) along periodic axes and clamps along
// the others.
func (g Grid) fold(d, k int) int {
	n := g.N[d]
	if g.Periodic[d] {
		return ((k % n) + n) % n
	}
	if k < 0 {
		return 0
	}
	if k >= n {
		return n - 1
	}
	return k
}

// Index flattens a cell coordinate.
func (g Grid) Index(c Cell) int {
	return (c[2]*g.N[1]+c[1])*g.N[0] + c[0]
}

// Coord is the inverse of Index.
func (g Grid) Coord(i int) Cell {
	return Cell{i % g.N[0], (i / g.N[0]) % g.N[1], i / (g.N[0] * g.N[1])}
}

// NumColors is the number of checkerboard colors, 2^Dims.
func (g Grid) NumColors() int {
	return 1 << g.Dims
}

// Color returns the checkerboard color of a cell: one parity bit per axis.
func (g Grid) Color(c Cell) int {
	color := 0
	for d := 0; d < g.Dims; d++ {
		color |= (c[d] & 1) << d
	}
	return color
}

// Groups returns the cell indices of each color. No two cells of one color
// share a face, edge or corner when every periodic axis has an even count
// (or a single cell, in which case that axis contributes no neighbor).
func (g Grid) Groups() [][]int {
	groups := make([][]int, g.NumColors())
	for i := 0; i < g.Len(); i++ {
		c := g.Color(g.Coord(i))
		groups[c] = append(groups[c], i)
	}
	return groups
}

// Bounds returns the fractional lower and upper corners of a cell before
// periodic folding; along axes past Dims the bounds are [0,1).
func (g Grid) Bounds(c Cell) (lo, hi r3.Vec) {
	off := [3]float64{g.Offset.X, g.Offset.Y, g.Offset.Z}
	var l, h [3]float64
	for d := 0; d < 3; d++ {
		if d >= g.Dims {
			l[d], h[d] = 0, 1
			continue
		}
		w := 1 / float64(g.N[d])
		l[d] = off[d] + float64(c[d])*w
		h[d] = l[d] + w
	}
	return r3.Vec{X: l[0], Y: l[1], Z: l[2]}, r3.Vec{X: h[0], Y: h[1], Z: h[2]}
}

// Active reports whether fractional coordinate f lies in cell c shrunk by
// inset (fractional units per axis). Periodic axes compare modulo 1.
func (g Grid) Active(f r3.Vec, c Cell, inset r3.Vec) bool {
	lo, hi := g.Bounds(c)
	fs := [3]float64{f.X, f.Y, f.Z}
	los := [3]float64{lo.X, lo.Y, lo.Z}
	his := [3]float64{hi.X, hi.Y, hi.Z}
	ins := [3]float64{inset.X, inset.Y, inset.Z}
	for d := 0; d < g.Dims; d++ {
		if g.N[d] == 1 {
			continue
		}
		x := fs[d]
		lower, upper := los[d]+ins[d], his[d]-ins[d]
		if g.Periodic[d] {
			x = los[d] + math.Mod(math.Mod(x-los[d], 1)+1, 1)
		} else {
			// edge cells along open axes extend to infinity
			if c[d] == 0 {
				lower = math.Inf(-1)
			}
			if c[d] == g.N[d]-1 {
				upper = math.Inf(1)
			}
		}
		if x < lower || x >= upper {
			return false
		}
	}
	return true
}
