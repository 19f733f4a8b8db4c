package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/domain"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
)

// checkerboardOffsetStream keeps the per-sweep grid offset stream apart from
// every per-cell stream of the same step.
const checkerboardOffsetStream = math.MaxUint64

// sweepSerial visits particles in index order, NSelect times.
func (in *Integrator) sweepSerial(step uint64) error {
	env := &trialEnv{
		sys:    in.sys,
		oracle: in.oracle,
		rng:    in.rng.Stream(SubsystemTrialMove, step),
		commit: in.cells.Notify,
		local:  make([]Counters, len(in.counts)),
	}
	defer in.flush(env.local)
	for s := 0; s < in.cfg.NSelect; s++ {
		for i := 0; i < in.sys.Len(); i++ {
			if err := in.oracle.Refresh(); err != nil {
				return err
			}
			in.attempt(env, i)
		}
	}
	return nil
}

// sweepCheckerboard tiles the box with cells at least one interaction
// diameter wide and an even count per periodic axis, colors them so that
// same-colored cells never touch, and sweeps the cells of one color
// concurrently. Trial moves that would leave their cell are rejected.
func (in *Integrator) sweepCheckerboard(step uint64) error {
	sys := in.sys
	box := sys.Box
	grid, err := index.NewGrid(box, sys.Shapes.MaxDiameter(), true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	shift := in.rng.Stream(SubsystemTrialMove, step, checkerboardOffsetStream)
	off := [3]float64{}
	for d := 0; d < grid.Dims; d++ {
		if grid.Periodic[d] && grid.N[d] > 1 {
			off[d] = shift.Float64() / float64(grid.N[d])
		}
	}
	grid.Offset = r3.Vec{X: off[0], Y: off[1], Z: off[2]}

	n := sys.Len()
	colorOf := make([]int, n)
	members := make([][]int, grid.Len())
	for i := 0; i < n; i++ {
		c := grid.Cell(box.Fractional(sys.Positions[i]))
		k := grid.Index(c)
		members[k] = append(members[k], i)
		colorOf[i] = grid.Color(c)
	}

	for color, group := range grid.Groups() {
		if err := in.oracle.Refresh(); err != nil {
			return err
		}
		moved := make([][]int, len(group))
		ParallelFor(in.cfg.Workers, len(group), func(w int) {
			k := group[w]
			cell := grid.Coord(k)
			own := members[k]
			env := &trialEnv{
				sys:    sys,
				oracle: in.oracle,
				rng:    in.rng.Stream(SubsystemTrialMove, step, uint64(color), uint64(k)),
				scope: func(i int) scope {
					return scope{
						skip:     i,
						exclude:  func(j int) bool { return colorOf[j] == color },
						explicit: own,
					}
				},
				allow: func(pos r3.Vec) bool {
					return grid.Active(box.Fractional(pos), cell, r3.Vec{})
				},
				commit: func(i int, _ r3.Vec) { moved[w] = append(moved[w], i) },
				local:  make([]Counters, len(in.counts)),
			}
			for s := 0; s < in.cfg.NSelect; s++ {
				for _, i := range own {
					in.attempt(env, i)
				}
			}
			in.flush(env.local)
		})
		for _, list := range moved {
			for _, i := range list {
				in.cells.Notify(i, sys.Positions[i])
			}
		}
	}
	return nil
}

// sweepDomain splits the box into partitions, copies each partition's owned
// particles and ghosts into a private system, sweeps the partitions
// concurrently and writes the owned poses back.
func (in *Integrator) sweepDomain(step uint64) error {
	sys := in.sys
	box := sys.Box
	dmax := sys.Shapes.MaxDiameter()
	dec := in.decomp
	if err := dec.Validate(box, dmax); err != nil {
		return err
	}
	if dec.Config().RandomShift {
		dec.RandomizeShift(in.rng.Stream(SubsystemDomain, step))
	}
	parts := dec.Exchange(box, sys)

	locals := make([]*System, len(parts))
	for p, part := range parts {
		locals[p] = sys.subset(part.Owned, part.Ghosts)
	}
	errs := make([]error, len(parts))
	ParallelFor(in.cfg.Workers, len(parts), func(p int) {
		errs[p] = in.sweepPartition(step, dec, parts[p], locals[p], dmax)
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	var moved []int
	for p, part := range parts {
		for li, gi := range part.Owned {
			if locals[p].Pose(li) != sys.Pose(gi) {
				sys.SetPose(gi, locals[p].Pose(li))
				moved = append(moved, gi)
			}
		}
	}
	in.cells.Invalidate()
	if dec.Config().CheckConsistency {
		return in.checkMoved(moved)
	}
	return nil
}

func (in *Integrator) sweepPartition(step uint64, dec *domain.Decomposition, part domain.Partition, local *System, dmax float64) error {
	box := local.Box
	cells := index.NewCellList(dmax, in.cfg.Margin)
	oracle := NewOracle(local, cells, in.fields, in.oracle.tol)
	env := &trialEnv{
		sys:    local,
		oracle: oracle,
		rng:    in.rng.Stream(SubsystemTrialMove, step, uint64(part.ID)),
		allow: func(pos r3.Vec) bool {
			return dec.Active(box, pos, part.ID, dmax/2)
		},
		commit: cells.Notify,
		local:  make([]Counters, len(in.counts)),
	}
	defer func() {
		in.flush(env.local)
		in.oracle.checks.Add(oracle.Checks())
		in.oracle.near.Add(oracle.NearTolerance())
	}()
	for s := 0; s < in.cfg.NSelect; s++ {
		for li := range part.Owned {
			if !dec.Active(box, local.Positions[li], part.ID, dmax/2) {
				continue
			}
			if err := oracle.Refresh(); err != nil {
				return err
			}
			in.attempt(env, li)
		}
	}
	return nil
}

// checkMoved re-checks moved particles against the global state.
func (in *Integrator) checkMoved(moved []int) error {
	if err := in.oracle.Refresh(); err != nil {
		return err
	}
	for _, i := range moved {
		if in.oracle.Overlaps(in.sys.Types[i], in.sys.Pose(i), i) || !in.oracle.Compatible(in.sys.Particle(i)) {
			logrus.Errorf("particle %d (tag %d) conflicts with the global state after a domain sweep", i, in.sys.Tags[i])
			return fmt.Errorf("%w: particle %d (tag %d) conflicts after merging partitions", ErrGhostMargin, i, in.sys.Tags[i])
		}
	}
	return nil
}
