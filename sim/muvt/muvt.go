// Package muvt implements grand canonical insertion and deletion moves at
// fixed per-type fugacity.
package muvt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/freevolume"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// Config groups MuVT parameters.
type Config struct {
	Fugacities []float64 // per type, in inverse volume units; 0 holds the type fixed
	Transfers  int       // insertion or deletion attempts per update
}

// Counters aggregates exchange statistics for one type.
type Counters struct {
	InsertAttempted int64
	InsertAccepted  int64
	RemoveAttempted int64
	RemoveAccepted  int64
}

// Updater exchanges particles with an ideal reservoir.
type Updater struct {
	in     *sim.Integrator
	cfg    Config
	active []int // types with non-zero fugacity
	counts []Counters

	// Trace receives one record per attempt when non-nil.
	Trace *trace.SimulationTrace
}

// New validates cfg and returns an updater for in.
func New(in *sim.Integrator, cfg Config) (*Updater, error) {
	ntypes := in.System().Shapes.Len()
	if len(cfg.Fugacities) != ntypes {
		return nil, fmt.Errorf("%w: need fugacities for %d types, got %d", sim.ErrInvalidConfig, ntypes, len(cfg.Fugacities))
	}
	if cfg.Transfers == 0 {
		cfg.Transfers = 1
	}
	if cfg.Transfers < 0 {
		return nil, fmt.Errorf("%w: transfers must be positive, got %d", sim.ErrInvalidConfig, cfg.Transfers)
	}
	u := &Updater{in: in, cfg: cfg, counts: make([]Counters, ntypes)}
	for t, z := range cfg.Fugacities {
		if math.IsNaN(z) || math.IsInf(z, 0) || z < 0 {
			return nil, fmt.Errorf("%w: fugacity[%d] must be non-negative, got %f", sim.ErrInvalidConfig, t, z)
		}
		if z > 0 {
			u.active = append(u.active, t)
		}
	}
	u.cfg.Fugacities = append([]float64(nil), cfg.Fugacities...)
	return u, nil
}

// Counters returns the statistics of type typ.
func (u *Updater) Counters(typ int) Counters { return u.counts[typ] }

// PartitionCounts returns the owned particle count of every partition of
// the integrator's decomposition, or nil without one.
func (u *Updater) PartitionCounts() []int {
	d := u.in.Decomposition()
	if d == nil {
		return nil
	}
	sys := u.in.System()
	return d.Counts(sys.Box, sys)
}

// Update performs Transfers exchange attempts. It implements sim.Updater.
func (u *Updater) Update(step uint64) error {
	if len(u.active) == 0 {
		return nil
	}
	rng := u.in.RNG().Stream(sim.SubsystemMuVT, step)
	for k := 0; k < u.cfg.Transfers; k++ {
		if err := u.in.Oracle().Refresh(); err != nil {
			return err
		}
		typ := u.active[rng.Intn(len(u.active))]
		if rng.Float64() < 0.5 {
			u.insert(step, rng, typ)
		} else {
			u.remove(step, rng, typ)
		}
	}
	return nil
}

func (u *Updater) insert(step uint64, rng *rand.Rand, typ int) {
	sys := u.in.System()
	oracle := u.in.Oracle()
	u.counts[typ].InsertAttempted++
	rec := trace.ExchangeRecord{Step: step, Type: typ, Insertion: true}
	defer func() { u.Trace.RecordExchange(rec) }()

	pose := freevolume.Sample(rng, sys.Box)
	if oracle.Overlaps(typ, pose, -1) {
		rec.Reason = "overlap"
		return
	}
	dU := 0.0
	if f := u.in.Fields(); f != nil {
		probe := sys.Probe(typ, pose)
		if !f.IsCompatible(sys.Box, probe) {
			rec.Reason = "field constraint"
			return
		}
		dU = f.Energy(sys.Box, probe)
	}
	nt := float64(sys.CountByType()[typ])
	acc := u.cfg.Fugacities[typ] * sys.Box.Volume() / (nt + 1) * math.Exp(-dU)
	if rng.Float64() >= acc {
		rec.Reason = "metropolis"
		return
	}
	i, tag := sys.Add(typ, pose)
	u.in.ParticlesChanged()
	u.counts[typ].InsertAccepted++
	rec.Accepted = true
	if d := u.in.Decomposition(); d != nil {
		logrus.Debugf("step %d: inserted particle %d (tag %d) into partition %d", step, i, tag, d.Owner(sys.Box, pose.Position))
	}
}

func (u *Updater) remove(step uint64, rng *rand.Rand, typ int) {
	sys := u.in.System()
	u.counts[typ].RemoveAttempted++
	rec := trace.ExchangeRecord{Step: step, Type: typ}
	defer func() { u.Trace.RecordExchange(rec) }()

	var candidates []int
	for i, t := range sys.Types {
		if t == typ {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		rec.Reason = "empty"
		return
	}
	j := candidates[rng.Intn(len(candidates))]
	dU := 0.0
	if f := u.in.Fields(); f != nil {
		dU = -f.Energy(sys.Box, sys.Particle(j))
	}
	acc := float64(len(candidates)) / (u.cfg.Fugacities[typ] * sys.Box.Volume()) * math.Exp(-dU)
	if rng.Float64() >= acc {
		rec.Reason = "metropolis"
		return
	}
	sys.Remove(j)
	u.in.ParticlesChanged()
	u.counts[typ].RemoveAccepted++
	rec.Accepted = true
}
