// Package field provides external-field adapters consulted by the HPMC
// overlap oracle: energies that bias acceptance and hard constraints that
// veto trial poses.
//
// Fields are deterministic functions of the box and a particle's pose. The
// only state they mutate is an evaluation counter, updated atomically so a
// field may be shared by concurrent sweep workers.
package field

import (
	"sync/atomic"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// Particle is the view of a particle a field evaluates.
type Particle struct {
	Tag   uint64
	Type  int
	Shape shape.Shape
	Pose  geom.Pose
}

// At returns a copy of p placed at pose.
func (p Particle) At(pose geom.Pose) Particle {
	p.Pose = pose
	return p
}

// Field is an external potential plus hard constraints.
type Field interface {
	// Energy returns the field energy of p in units of kT.
	Energy(box geom.Box, p Particle) float64
	// EnergyDelta returns Energy at trial minus Energy at p's current pose.
	EnergyDelta(box geom.Box, p Particle, trial geom.Pose) float64
	// IsCompatible reports whether p satisfies every hard constraint.
	IsCompatible(box geom.Box, p Particle) bool
	// Evaluations counts Energy and IsCompatible calls.
	Evaluations() int64
}

// stats is embedded by every adapter.
type stats struct {
	evals atomic.Int64
}

func (s *stats) count()             { s.evals.Add(1) }
func (s *stats) Evaluations() int64 { return s.evals.Load() }

// delta evaluates EnergyDelta through Energy.
func delta(f Field, box geom.Box, p Particle, trial geom.Pose) float64 {
	return f.Energy(box, p.At(trial)) - f.Energy(box, p)
}

// Composite sums energies and ANDs constraints of its members.
type Composite struct {
	stats
	Fields []Field
}

// NewComposite drops nil members.
func NewComposite(fields ...Field) *Composite {
	c := &Composite{}
	for _, f := range fields {
		if f != nil {
			c.Fields = append(c.Fields, f)
		}
	}
	return c
}

func (c *Composite) Energy(box geom.Box, p Particle) float64 {
	c.count()
	e := 0.0
	for _, f := range c.Fields {
		e += f.Energy(box, p)
	}
	return e
}

func (c *Composite) EnergyDelta(box geom.Box, p Particle, trial geom.Pose) float64 {
	d := 0.0
	for _, f := range c.Fields {
		d += f.EnergyDelta(box, p, trial)
	}
	return d
}

func (c *Composite) IsCompatible(box geom.Box, p Particle) bool {
	c.count()
	for _, f := range c.Fields {
		if !f.IsCompatible(box, p) {
			return false
		}
	}
	return true
}

// Callback adapts externally supplied functions. A nil EnergyFunc
// contributes no energy; a nil CompatibleFunc accepts every pose.
type Callback struct {
	stats
	EnergyFunc     func(box geom.Box, p Particle) float64
	CompatibleFunc func(box geom.Box, p Particle) bool
}

func (c *Callback) Energy(box geom.Box, p Particle) float64 {
	c.count()
	if c.EnergyFunc == nil {
		return 0
	}
	return c.EnergyFunc(box, p)
}

func (c *Callback) EnergyDelta(box geom.Box, p Particle, trial geom.Pose) float64 {
	if c.EnergyFunc == nil {
		return 0
	}
	return delta(c, box, p, trial)
}

func (c *Callback) IsCompatible(box geom.Box, p Particle) bool {
	c.count()
	if c.CompatibleFunc == nil {
		return true
	}
	return c.CompatibleFunc(box, p)
}
