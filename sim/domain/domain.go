// Package domain partitions the simulation box into spatial domains that
// sweep concurrently. Each partition owns the particles inside its slab and
// sees copies of foreign particles within the ghost width. Only owned
// particles whose trial poses stay inside the active region (the slab inset
// by half the largest interaction diameter) may move, so moves in different
// partitions never interact.
package domain

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
)

// ErrGhostMargin reports a ghost layer too thin to guarantee that
// partitions agree with the global configuration.
var ErrGhostMargin = errors.New("ghost margin too small")

// Config groups decomposition parameters.
type Config struct {
	Partitions       [3]int  // partitions per axis; 0 is treated as 1
	GhostWidth       float64 // ghost layer thickness, >= max interaction diameter
	RandomShift      bool    // shift the partition origin randomly every sweep
	CheckConsistency bool    // re-check owned particles globally after each sweep
}

// Partition lists the particles one domain works on.
type Partition struct {
	ID     int
	Cell   index.Cell
	Owned  []int
	Ghosts []int
}

// Decomposition holds per-axis fractional boundaries and the origin shift.
type Decomposition struct {
	cfg    Config
	grid   index.Grid
	bounds [3][]float64
	shift  r3.Vec
}

// NewDecomposition builds an evenly spaced decomposition of box.
func NewDecomposition(cfg Config, box geom.Box) (*Decomposition, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if !(cfg.GhostWidth > 0) {
		return nil, fmt.Errorf("%w: ghost width must be positive, got %f", ErrGhostMargin, cfg.GhostWidth)
	}
	g := index.Grid{Dims: box.Dimensions, N: [3]int{1, 1, 1}, Periodic: box.Periodic}
	var bounds [3][]float64
	for d := 0; d < 3; d++ {
		n := cfg.Partitions[d]
		if n < 0 {
			return nil, fmt.Errorf("partitions[%d] must be non-negative, got %d", d, n)
		}
		if n == 0 || d >= box.Dimensions {
			n = 1
		}
		cfg.Partitions[d] = n
		g.N[d] = n
		bounds[d] = make([]float64, n+1)
		for k := 0; k <= n; k++ {
			bounds[d][k] = float64(k) / float64(n)
		}
	}
	return &Decomposition{cfg: cfg, grid: g, bounds: bounds}, nil
}

// Config returns the normalized configuration.
func (d *Decomposition) Config() Config { return d.cfg }

// Len is the number of partitions.
func (d *Decomposition) Len() int { return d.grid.Len() }

// Grid returns the partition lattice.
func (d *Decomposition) Grid() index.Grid { return d.grid }

// Bounds returns a copy of the fractional boundaries along axis.
func (d *Decomposition) Bounds(axis int) []float64 {
	return append([]float64(nil), d.bounds[axis]...)
}

// SetBounds replaces the boundaries along axis. They must start at 0, end at
// 1 and increase strictly.
func (d *Decomposition) SetBounds(axis int, b []float64) error {
	if len(b) != len(d.bounds[axis]) {
		return fmt.Errorf("axis %d needs %d boundaries, got %d", axis, len(d.bounds[axis]), len(b))
	}
	if b[0] != 0 || b[len(b)-1] != 1 {
		return fmt.Errorf("axis %d boundaries must span [0,1]", axis)
	}
	for k := 1; k < len(b); k++ {
		if !(b[k] > b[k-1]) {
			return fmt.Errorf("axis %d boundaries must increase, got %v", axis, b)
		}
	}
	d.bounds[axis] = append([]float64(nil), b...)
	return nil
}

// Shift returns the fractional origin shift.
func (d *Decomposition) Shift() r3.Vec { return d.shift }

// SetShift sets the fractional origin shift. Components along open axes or
// axes with a single partition are ignored.
func (d *Decomposition) SetShift(s r3.Vec) {
	c := [3]float64{s.X, s.Y, s.Z}
	for k := 0; k < 3; k++ {
		if !d.shiftable(k) {
			c[k] = 0
		}
	}
	d.shift = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
}

// RandomizeShift draws a uniform origin shift.
func (d *Decomposition) RandomizeShift(rng *rand.Rand) {
	d.SetShift(r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()})
}

func (d *Decomposition) shiftable(axis int) bool {
	return axis < d.grid.Dims && d.grid.Periodic[axis] && d.grid.N[axis] > 1
}

// Validate checks the ghost width against the largest interaction diameter
// and every partition width against the ghost width.
func (d *Decomposition) Validate(box geom.Box, maxDiameter float64) error {
	if d.cfg.GhostWidth < maxDiameter {
		return fmt.Errorf("%w: ghost width %f is below the interaction diameter %f", ErrGhostMargin, d.cfg.GhostWidth, maxDiameter)
	}
	pd := planeDistances(box)
	for axis := 0; axis < d.grid.Dims; axis++ {
		if d.grid.N[axis] == 1 {
			continue
		}
		b := d.bounds[axis]
		for k := 1; k < len(b); k++ {
			w := (b[k] - b[k-1]) * pd[axis]
			if w < d.cfg.GhostWidth {
				return fmt.Errorf("%w: partition %d along axis %d is %f wide, below the ghost width %f", ErrGhostMargin, k-1, axis, w, d.cfg.GhostWidth)
			}
		}
	}
	return nil
}

func planeDistances(box geom.Box) [3]float64 {
	pd := box.NearestPlaneDistance()
	return [3]float64{pd.X, pd.Y, pd.Z}
}

// coord returns the shifted fractional coordinate along axis, folded into
// [0,1) when the axis is periodic.
func (d *Decomposition) coord(box geom.Box, pos r3.Vec, axis int) float64 {
	f := box.Fractional(pos)
	fs := [3]float64{f.X, f.Y, f.Z}
	s := [3]float64{d.shift.X, d.shift.Y, d.shift.Z}
	x := fs[axis] - s[axis]
	if d.grid.Periodic[axis] {
		x -= math.Floor(x)
	}
	return x
}

// slab returns the bounds of slab k along axis. Edge slabs of open axes
// extend to infinity.
func (d *Decomposition) slab(axis, k int) (lo, hi float64) {
	b := d.bounds[axis]
	lo, hi = b[k], b[k+1]
	if !d.grid.Periodic[axis] {
		if k == 0 {
			lo = math.Inf(-1)
		}
		if k == len(b)-2 {
			hi = math.Inf(1)
		}
	}
	return lo, hi
}

// Owner returns the partition that owns position pos.
func (d *Decomposition) Owner(box geom.Box, pos r3.Vec) int {
	var c index.Cell
	for axis := 0; axis < d.grid.Dims; axis++ {
		if d.grid.N[axis] == 1 {
			continue
		}
		x := d.coord(box, pos, axis)
		b := d.bounds[axis]
		// first boundary strictly greater than x, minus one
		k := sort.SearchFloat64s(b, x)
		if k < len(b) && b[k] == x {
			k++
		}
		c[axis] = clamp(k-1, 0, d.grid.N[axis]-1)
	}
	return d.grid.Index(c)
}

// Active reports whether pos lies in partition part shrunk by inset (a
// length) on every side that borders another partition.
func (d *Decomposition) Active(box geom.Box, pos r3.Vec, part int, inset float64) bool {
	c := d.grid.Coord(part)
	pd := planeDistances(box)
	for axis := 0; axis < d.grid.Dims; axis++ {
		if d.grid.N[axis] == 1 {
			continue
		}
		lo, hi := d.slab(axis, c[axis])
		x := d.coord(box, pos, axis)
		in := inset / pd[axis]
		if x < lo+in || x >= hi-in {
			return false
		}
	}
	return true
}

// distance returns the fractional distance from x to slab k along axis.
func (d *Decomposition) distance(axis, k int, x float64) float64 {
	lo, hi := d.slab(axis, k)
	if x >= lo && x < hi {
		return 0
	}
	if !d.grid.Periodic[axis] {
		if x < lo {
			return lo - x
		}
		return x - hi
	}
	below := lo - x
	below -= math.Floor(below)
	above := x - hi
	above -= math.Floor(above)
	return math.Min(below, above)
}

// Exchange assigns every particle to its owner and replicates ghosts: the
// particles of other partitions whose position lies within the ghost width
// of a partition, through any periodic image.
func (d *Decomposition) Exchange(box geom.Box, src index.PositionSource) []Partition {
	parts := make([]Partition, d.Len())
	for p := range parts {
		parts[p] = Partition{ID: p, Cell: d.grid.Coord(p)}
	}
	pd := planeDistances(box)
	reach := [3]float64{}
	for axis := 0; axis < 3; axis++ {
		reach[axis] = d.cfg.GhostWidth / pd[axis]
	}
	for i := 0; i < src.Len(); i++ {
		pos := src.Position(i)
		owner := d.Owner(box, pos)
		parts[owner].Owned = append(parts[owner].Owned, i)
		var xs [3]float64
		for axis := 0; axis < d.grid.Dims; axis++ {
			xs[axis] = d.coord(box, pos, axis)
		}
		for p := range parts {
			if p == owner {
				continue
			}
			near := true
			for axis := 0; axis < d.grid.Dims && near; axis++ {
				if d.grid.N[axis] == 1 {
					continue
				}
				near = d.distance(axis, parts[p].Cell[axis], xs[axis]) <= reach[axis]
			}
			if near {
				parts[p].Ghosts = append(parts[p].Ghosts, i)
			}
		}
	}
	return parts
}

// Counts returns the number of owned particles per partition.
func (d *Decomposition) Counts(box geom.Box, src index.PositionSource) []int {
	counts := make([]int, d.Len())
	for i := 0; i < src.Len(); i++ {
		counts[d.Owner(box, src.Position(i))]++
	}
	return counts
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
