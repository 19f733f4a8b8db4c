// Package shapemove implements Monte Carlo over shape parameters: a
// pluggable Move proposes a new shape for one type, the configuration is
// re-validated under it, and a Metropolis test over a shape-space energy
// decides. A rejected trial leaves the previous shape value in place.
package shapemove

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// EnergyFunc is the shape-space energy of type typ having shape s, in kT
// units when Beta is 1.
type EnergyFunc func(typ int, s shape.Shape) float64

// Config groups shape-move parameters.
type Config struct {
	Types    []int      // types to evolve; nil means all
	Attempts int        // trials per update
	Beta     float64    // inverse temperature applied to Energy
	Energy   EnergyFunc // nil means zero energy
}

// Counters aggregates shape-move statistics for one type.
type Counters struct {
	Attempted int64
	Accepted  int64
	Invalid   int64 // proposal was not a valid shape
	Overlap   int64 // configuration infeasible under the trial shape
	Margin    int64 // trial shape too large for the domain decomposition
}

// Updater evolves particle shapes between sweeps.
type Updater struct {
	in     *sim.Integrator
	move   Move
	cfg    Config
	counts []Counters

	// Trace receives one record per trial when non-nil.
	Trace *trace.SimulationTrace
}

// New validates cfg and returns an updater driving move.
func New(in *sim.Integrator, move Move, cfg Config) (*Updater, error) {
	ntypes := in.System().Shapes.Len()
	if move == nil {
		return nil, fmt.Errorf("%w: shape move is nil", sim.ErrInvalidConfig)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.Attempts < 0 {
		return nil, fmt.Errorf("%w: attempts must be positive, got %d", sim.ErrInvalidConfig, cfg.Attempts)
	}
	if math.IsNaN(cfg.Beta) || cfg.Beta < 0 {
		return nil, fmt.Errorf("%w: beta must be non-negative, got %f", sim.ErrInvalidConfig, cfg.Beta)
	}
	if cfg.Types == nil {
		for t := 0; t < ntypes; t++ {
			cfg.Types = append(cfg.Types, t)
		}
	}
	for _, t := range cfg.Types {
		if t < 0 || t >= ntypes {
			return nil, fmt.Errorf("%w: type %d out of range [0,%d)", sim.ErrInvalidConfig, t, ntypes)
		}
	}
	return &Updater{in: in, move: move, cfg: cfg, counts: make([]Counters, ntypes)}, nil
}

// Counters returns the statistics of type typ.
func (u *Updater) Counters(typ int) Counters { return u.counts[typ] }

// Update performs Attempts shape trials. It implements sim.Updater.
func (u *Updater) Update(step uint64) error {
	if len(u.cfg.Types) == 0 {
		return nil
	}
	rng := u.in.RNG().Stream(sim.SubsystemShape, step)
	for k := 0; k < u.cfg.Attempts; k++ {
		typ := u.cfg.Types[rng.Intn(len(u.cfg.Types))]
		rec, err := u.trial(step, rng, typ)
		if err != nil {
			return err
		}
		u.Trace.RecordShape(rec)
	}
	return nil
}

func (u *Updater) trial(step uint64, rng *rand.Rand, typ int) (trace.ShapeRecord, error) {
	sys := u.in.System()
	rec := trace.ShapeRecord{Step: step, Type: typ}
	c := &u.counts[typ]
	c.Attempted++

	old := sys.Shapes.Get(typ)
	prop, err := u.move.Propose(rng, typ, old)
	if err == nil && prop.Shape != nil {
		if d := prop.Shape.Dimensions(); d != 0 && d != sys.Box.Dimensions {
			err = fmt.Errorf("%w: %dD shape in a %dD box", shape.ErrInvalidShape, d, sys.Box.Dimensions)
		}
	} else if err == nil {
		err = fmt.Errorf("%w: proposal has no shape", shape.ErrInvalidShape)
	}
	if err != nil {
		if errors.Is(err, shape.ErrInvalidShape) {
			c.Invalid++
			rec.Reason = "invalid shape"
			return rec, nil
		}
		return rec, fmt.Errorf("type %d shape proposal: %w", typ, err)
	}

	if err := u.swap(typ, prop.Shape); err != nil {
		return rec, err
	}
	if err := u.in.CheckDecomposition(); err != nil {
		if rerr := u.swap(typ, old); rerr != nil {
			return rec, rerr
		}
		if !errors.Is(err, sim.ErrGhostMargin) {
			return rec, err
		}
		c.Margin++
		rec.Reason = "ghost margin"
		return rec, nil
	}
	if err := u.in.Oracle().CheckConfiguration(); err != nil {
		if rerr := u.swap(typ, old); rerr != nil {
			return rec, rerr
		}
		if !errors.Is(err, sim.ErrInfeasible) {
			return rec, err
		}
		c.Overlap++
		rec.Reason = "overlap"
		return rec, nil
	}

	logp := prop.LogRatio
	if u.cfg.Energy != nil {
		logp -= u.cfg.Beta * (u.cfg.Energy(typ, prop.Shape) - u.cfg.Energy(typ, old))
	}
	if logp < 0 && rng.Float64() >= math.Exp(logp) {
		if err := u.swap(typ, old); err != nil {
			return rec, err
		}
		rec.Reason = "metropolis"
		return rec, nil
	}
	if prop.Commit != nil {
		prop.Commit()
	}
	c.Accepted++
	rec.Accepted = true
	logrus.Debugf("step %d: type %d accepted %s with circumsphere diameter %.4f", step, typ, prop.Shape.Kind(), prop.Shape.CircumsphereDiameter())
	return rec, nil
}

func (u *Updater) swap(typ int, s shape.Shape) error {
	if err := u.in.System().Shapes.Set(typ, s); err != nil {
		return err
	}
	u.in.ShapesChanged()
	return nil
}
