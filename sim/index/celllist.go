package index

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// PositionSource exposes the positions a CellList indexes.
type PositionSource interface {
	Len() int
	Position(i int) r3.Vec
}

// Candidate is a particle index together with the lattice image in which it
// may be near the query point.
type Candidate struct {
	Index int
	Image [3]int
}

// CellList bins particles by fractional position for neighbor queries.
//
// The list is rebuilt lazily. Callers report accepted displacements through
// Notify; once any particle has drifted more than half the margin from where
// it was binned the list is marked stale and the next EnsureBuilt rebuilds
// it. Any other change to the particle set (insertions, removals, box or
// shape changes) must call Invalidate.
type CellList struct {
	width  float64
	margin float64

	box      geom.Box
	grid     Grid
	cells    [][]int
	pos      []r3.Vec // wrapped positions at build time
	valid    bool
	rebuilds int
}

// NewCellList returns an empty list with cells at least width wide.
func NewCellList(width, margin float64) *CellList {
	return &CellList{width: width, margin: margin}
}

// Margin returns the drift allowance added to every query radius.
func (c *CellList) Margin() float64 { return c.margin }

// Rebuilds counts how many times the list has been rebuilt.
func (c *CellList) Rebuilds() int { return c.rebuilds }

// Grid returns the binning grid of the last build.
func (c *CellList) Grid() Grid { return c.grid }

// Invalidate forces a rebuild on the next EnsureBuilt.
func (c *CellList) Invalidate() { c.valid = false }

// SetWidth changes the cell width and invalidates the list.
func (c *CellList) SetWidth(width float64) {
	c.width = width
	c.valid = false
}

// Notify records that particle i now sits at pos.
func (c *CellList) Notify(i int, pos r3.Vec) {
	if !c.valid || i >= len(c.pos) {
		c.valid = false
		return
	}
	if r3.Norm(c.box.MinImage(r3.Sub(pos, c.pos[i]))) > c.margin/2 {
		c.valid = false
	}
}

// EnsureBuilt rebuilds the list if it is stale or if the box or particle
// count changed since the last build.
func (c *CellList) EnsureBuilt(src PositionSource, box geom.Box) error {
	if c.valid && box == c.box && src.Len() == len(c.pos) {
		return nil
	}
	return c.Build(src, box)
}

// Build bins every particle of src.
func (c *CellList) Build(src PositionSource, box geom.Box) error {
	grid, err := NewGrid(box, c.width, false)
	if err != nil {
		return err
	}
	c.box, c.grid = box, grid
	if len(c.cells) != grid.Len() {
		c.cells = make([][]int, grid.Len())
	} else {
		for i := range c.cells {
			c.cells[i] = c.cells[i][:0]
		}
	}
	n := src.Len()
	if cap(c.pos) < n {
		c.pos = make([]r3.Vec, n)
	}
	c.pos = c.pos[:n]
	for i := 0; i < n; i++ {
		w, _ := box.Wrap(src.Position(i))
		c.pos[i] = w
		k := grid.Index(grid.Cell(box.Fractional(w)))
		c.cells[k] = append(c.cells[k], i)
	}
	c.valid = true
	c.rebuilds++
	return nil
}

// Query appends to out every particle image that may lie within radius of
// x. The result is a superset; callers compute exact displacements with
// Relative.
func (c *CellList) Query(x r3.Vec, radius float64, out []Candidate) []Candidate {
	g := c.grid
	f := c.box.Fractional(x)
	fs := [3]float64{f.X, f.Y, f.Z}
	pd := c.box.NearestPlaneDistance()
	pds := [3]float64{pd.X, pd.Y, pd.Z}
	reach := radius + c.margin

	var lo, hi [3]int
	for d := 0; d < g.Dims; d++ {
		r := reach / pds[d]
		n := float64(g.N[d])
		lo[d] = int(math.Floor((fs[d] - r) * n))
		hi[d] = int(math.Floor((fs[d] + r) * n))
		if !g.Periodic[d] {
			lo[d] = clamp(lo[d], 0, g.N[d]-1)
			hi[d] = clamp(hi[d], 0, g.N[d]-1)
		}
	}
	for k2 := lo[2]; k2 <= hi[2]; k2++ {
		for k1 := lo[1]; k1 <= hi[1]; k1++ {
			for k0 := lo[0]; k0 <= hi[0]; k0++ {
				raw := [3]int{k0, k1, k2}
				var cell Cell
				var image [3]int
				for d := 0; d < 3; d++ {
					cell[d], image[d] = floorMod(raw[d], g.N[d]), floorDiv(raw[d], g.N[d])
				}
				for _, j := range c.cells[g.Index(cell)] {
					out = append(out, Candidate{Index: j, Image: image})
				}
			}
		}
	}
	return out
}

// Relative returns the displacement from x to the candidate image, given the
// candidate's live position.
func (c *CellList) Relative(x r3.Vec, cand Candidate, live r3.Vec) r3.Vec {
	built := c.pos[cand.Index]
	img := r3.Add(built, c.box.Shift(cand.Image))
	return r3.Sub(r3.Add(img, c.box.MinImage(r3.Sub(live, built))), x)
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

func floorDiv(a, n int) int {
	q := a / n
	if a%n != 0 && a < 0 {
		q--
	}
	return q
}

func floorMod(a, n int) int {
	return ((a % n) + n) % n
}
