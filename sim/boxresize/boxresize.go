// Package boxresize changes the simulation box along a schedule, carrying
// particles with it in fractional coordinates.
package boxresize

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// Filter selects the particles whose fractional coordinates are preserved.
type Filter func(sys *sim.System, i int) bool

// All selects every particle.
func All(*sim.System, int) bool { return true }

// Types selects particles of the listed types.
func Types(types ...int) Filter {
	set := map[int]bool{}
	for _, t := range types {
		set[t] = true
	}
	return func(sys *sim.System, i int) bool { return set[sys.Types[i]] }
}

// Updater sets the box to Interpolate(From, To, Variant.Value(step)).
// Selected particles keep their fractional coordinates; the rest keep their
// positions and are wrapped into the new box. A resize that would make the
// configuration infeasible, or that no longer fits the domain decomposition,
// is refused and the previous state restored.
type Updater struct {
	From, To geom.Box
	Variant  sim.Variant
	Filter   Filter // nil selects every particle

	in      *sim.Integrator
	applied int64
	refused int64

	// Trace receives one record per update when non-nil.
	Trace *trace.SimulationTrace
}

// New validates the end points and returns an updater.
func New(in *sim.Integrator, from, to geom.Box, v sim.Variant) (*Updater, error) {
	for _, b := range []geom.Box{from, to} {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", sim.ErrInvalidConfig, err)
		}
	}
	if from.Dimensions != to.Dimensions || from.Periodic != to.Periodic {
		return nil, fmt.Errorf("%w: resize end points differ in dimensionality or periodicity", sim.ErrInvalidConfig)
	}
	if from.Dimensions != in.System().Box.Dimensions {
		return nil, fmt.Errorf("%w: %dD resize of a %dD system", sim.ErrInvalidConfig, from.Dimensions, in.System().Box.Dimensions)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: resize variant is nil", sim.ErrInvalidConfig)
	}
	return &Updater{From: from, To: to, Variant: v, in: in}, nil
}

// Applied counts resizes that took effect.
func (u *Updater) Applied() int64 { return u.applied }

// Refused counts resizes rejected as infeasible or too tight for the
// decomposition.
func (u *Updater) Refused() int64 { return u.refused }

// Update applies the box for step. It implements sim.Updater.
func (u *Updater) Update(step uint64) error {
	sys := u.in.System()
	target := geom.Interpolate(u.From, u.To, u.Variant.Value(step))
	if target == sys.Box {
		return nil
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%w: box at step %d: %v", sim.ErrInvalidConfig, step, err)
	}
	rec := trace.ResizeRecord{Step: step}
	defer func() { u.Trace.RecordResize(rec) }()

	old := sys.Box
	saved := append([]r3.Vec(nil), sys.Positions...)
	filter := u.Filter
	if filter == nil {
		filter = All
	}
	for i, x := range sys.Positions {
		if filter(sys, i) {
			sys.Positions[i] = target.FromFractional(old.Fractional(x))
		} else {
			sys.Positions[i], _ = target.Wrap(x)
		}
	}
	sys.Box = target
	u.in.BoxChanged()

	err := u.in.CheckDecomposition()
	if err == nil {
		err = u.in.Oracle().CheckConfiguration()
	}
	if err == nil {
		u.applied++
		rec.Applied = true
		logrus.Debugf("step %d: box resized to L=(%.4f, %.4f, %.4f) tilts=(%.4f, %.4f, %.4f)",
			step, target.L.X, target.L.Y, target.L.Z, target.XY, target.XZ, target.YZ)
		return nil
	}
	copy(sys.Positions, saved)
	sys.Box = old
	u.in.BoxChanged()
	if !errors.Is(err, sim.ErrInfeasible) && !errors.Is(err, sim.ErrGhostMargin) {
		return err
	}
	u.refused++
	rec.Reason = err.Error()
	logrus.Warnf("step %d: box resize refused: %v", step, err)
	return nil
}
