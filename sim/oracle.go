package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// Oracle answers feasibility questions about hypothetical poses against the
// current state of a System: pair overlaps through the cell list, periodic
// self-images, and hard field constraints.
//
// Queries read particle state and the cell list without locking. Concurrent
// callers must guarantee that no particle they can see is being moved.
type Oracle struct {
	sys    *System
	cells  *index.CellList
	fields field.Field
	tol    shape.Tolerance

	checks atomic.Int64
	near   atomic.Int64
}

// NewOracle returns an oracle over sys. fields may be nil.
func NewOracle(sys *System, cells *index.CellList, fields field.Field, tol shape.Tolerance) *Oracle {
	return &Oracle{sys: sys, cells: cells, fields: fields, tol: tol}
}

// System returns the state the oracle reads.
func (o *Oracle) System() *System { return o.sys }

// Fields returns the external field, possibly nil.
func (o *Oracle) Fields() field.Field { return o.fields }

// Tolerance returns the overlap tie rule.
func (o *Oracle) Tolerance() shape.Tolerance { return o.tol }

// Checks counts pair overlap tests.
func (o *Oracle) Checks() int64 { return o.checks.Load() }

// NearTolerance counts decisions inside the tie band.
func (o *Oracle) NearTolerance() int64 { return o.near.Load() }

// Refresh rebuilds the cell list if it is stale. Call it before querying
// after any change the list has not been notified of.
func (o *Oracle) Refresh() error {
	return o.cells.EnsureBuilt(o.sys, o.sys.Box)
}

// Invalidate marks the cell list stale.
func (o *Oracle) Invalidate() { o.cells.Invalidate() }

// Notify reports that particle i now sits at pos.
func (o *Oracle) Notify(i int, pos r3.Vec) { o.cells.Notify(i, pos) }

// scope narrows which particles a query sees.
type scope struct {
	skip     int              // the particle being moved, or -1
	exclude  func(j int) bool // hidden from the cell-list scan
	explicit []int            // checked by live minimum image instead
	noSelf   bool             // skip periodic self-images of the probe
}

// scan calls visit for every particle overlapping a shape of type typ at
// pose, in a fixed order. visit returns true to stop the scan; scan
// reports whether it was stopped. A self-image overlap is reported as
// j == scope.skip (or -1 for a virtual probe).
func (o *Oracle) scan(typ int, pose geom.Pose, sc scope, visit func(j int) bool) bool {
	sys := o.sys
	si := sys.Shapes.Get(typ)
	di := si.CircumsphereDiameter()
	x, q := pose.Position, pose.Orientation

	if !sc.noSelf {
		for _, n := range sys.Box.ImagesWithin(r3.Vec{}, di) {
			if n == ([3]int{}) {
				continue
			}
			if o.pair(si, si, sys.Box.Shift(n), q, q) && visit(sc.skip) {
				return true
			}
		}
	}

	radius := (di + sys.Shapes.MaxDiameter()) / 2
	for _, cand := range o.cells.Query(x, radius, nil) {
		j := cand.Index
		if j == sc.skip || (sc.exclude != nil && sc.exclude(j)) {
			continue
		}
		r := o.cells.Relative(x, cand, sys.Positions[j])
		if o.pair(si, sys.Shapes.Get(sys.Types[j]), r, q, sys.Orientations[j]) && visit(j) {
			return true
		}
	}

	for _, j := range sc.explicit {
		if j == sc.skip {
			continue
		}
		sj := sys.Shapes.Get(sys.Types[j])
		reach := (di + sj.CircumsphereDiameter()) / 2
		d := sys.Box.MinImage(r3.Sub(sys.Positions[j], x))
		for _, n := range sys.Box.ImagesWithin(d, reach) {
			r := r3.Add(d, sys.Box.Shift(n))
			if o.pair(si, sj, r, q, sys.Orientations[j]) && visit(j) {
				return true
			}
		}
	}
	return false
}

func (o *Oracle) pair(a, b shape.Shape, r r3.Vec, qa, qb quat.Number) bool {
	o.checks.Add(1)
	overlap, near := shape.Check(a, b, r, qa, qb, o.tol)
	if near {
		o.near.Add(1)
		logrus.Debugf("overlap decision within tolerance at separation vector %v", r)
	}
	return overlap
}

// Overlaps reports whether a particle of type typ at pose would overlap any
// particle other than skip, or one of its own periodic images. Pass skip =
// -1 for a particle not in the system.
func (o *Oracle) Overlaps(typ int, pose geom.Pose, skip int) bool {
	return o.scan(typ, pose, scope{skip: skip}, func(int) bool { return true })
}

// ProbeOverlaps reports whether a test particle of type typ at pose would
// overlap any particle of the system. The probe's own images are ignored.
func (o *Oracle) ProbeOverlaps(typ int, pose geom.Pose) bool {
	return o.scan(typ, pose, scope{skip: -1, noSelf: true}, func(int) bool { return true })
}

// overlapsScoped is Overlaps with a narrowed view, used by concurrent sweeps.
func (o *Oracle) overlapsScoped(typ int, pose geom.Pose, sc scope) bool {
	return o.scan(typ, pose, sc, func(int) bool { return true })
}

// ForEachOverlap calls fn for every particle other than skip that a shape
// of type typ at pose overlaps. Self-images are not reported.
func (o *Oracle) ForEachOverlap(typ int, pose geom.Pose, skip int, fn func(j int)) {
	o.scan(typ, pose, scope{skip: skip, noSelf: true}, func(j int) bool {
		fn(j)
		return false
	})
}

// Compatible reports whether p satisfies every hard field constraint.
func (o *Oracle) Compatible(p field.Particle) bool {
	return o.fields == nil || o.fields.IsCompatible(o.sys.Box, p)
}

// Feasible reports whether p could occupy its pose: no overlaps with
// particles other than skip and all hard constraints satisfied.
func (o *Oracle) Feasible(p field.Particle, skip int) bool {
	return !o.Overlaps(p.Type, p.Pose, skip) && o.Compatible(p)
}

// CheckConfiguration verifies the whole state. It returns an error wrapping
// ErrInfeasible that names the first offending particle.
func (o *Oracle) CheckConfiguration() error {
	if err := o.Refresh(); err != nil {
		return err
	}
	sys := o.sys
	for i := 0; i < sys.Len(); i++ {
		other := -2
		o.scan(sys.Types[i], sys.Pose(i), scope{skip: i}, func(j int) bool {
			if j == i || j > i {
				other = j
				return true
			}
			return false
		})
		switch {
		case other == i:
			return fmt.Errorf("%w: particle %d (tag %d) overlaps its own periodic image", ErrInfeasible, i, sys.Tags[i])
		case other >= 0:
			return fmt.Errorf("%w: particles %d (tag %d) and %d (tag %d) overlap", ErrInfeasible, i, sys.Tags[i], other, sys.Tags[other])
		}
		if !o.Compatible(sys.Particle(i)) {
			return fmt.Errorf("%w: particle %d (tag %d) violates a hard field constraint", ErrInfeasible, i, sys.Tags[i])
		}
	}
	return nil
}

// CountOverlaps returns the number of overlapping particle-image pairs.
// A particle overlapping its own images counts once.
func (o *Oracle) CountOverlaps() (int, error) {
	if err := o.Refresh(); err != nil {
		return 0, err
	}
	sys := o.sys
	total := 0
	for i := 0; i < sys.Len(); i++ {
		self := false
		o.scan(sys.Types[i], sys.Pose(i), scope{skip: i}, func(j int) bool {
			switch {
			case j == i:
				self = true
			case j > i:
				total++
			}
			return false
		})
		if self {
			total++
		}
	}
	return total, nil
}
