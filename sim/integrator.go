package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/domain"
	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// Integrator performs local Metropolis trial moves (translations and
// rotations) on every particle of a System, one sweep at a time.
type Integrator struct {
	sys    *System
	cfg    IntegratorConfig
	fields field.Field
	rng    *PartitionedRNG

	cells  *index.CellList
	oracle *Oracle
	decomp *domain.Decomposition

	counts   []sharedCounters // per type
	baseline struct{ checks, near int64 }
	prepared bool
	step     uint64
}

// NewIntegrator validates cfg against sys and returns an integrator. fields
// may be nil. The configuration is checked for overlaps on the first Sweep
// (or an explicit Prepare).
func NewIntegrator(sys *System, cfg IntegratorConfig, fields field.Field, rng *PartitionedRNG) (*Integrator, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(sys.Shapes.Len()); err != nil {
		return nil, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSerial
	}
	if cfg.Distribution == "" {
		cfg.Distribution = DistributionUniform
	}
	cfg.Moves = append([]MoveConfig(nil), cfg.Moves...)
	dmax := sys.Shapes.MaxDiameter()
	if cfg.Margin == 0 {
		cfg.Margin = 0.3 * dmax
	}
	in := &Integrator{
		sys:    sys,
		cfg:    cfg,
		fields: fields,
		rng:    rng,
		cells:  index.NewCellList(dmax, cfg.Margin),
		counts: make([]sharedCounters, sys.Shapes.Len()),
	}
	in.oracle = NewOracle(sys, in.cells, fields, shape.Tolerance{Epsilon: cfg.Epsilon})
	if cfg.Mode == ModeDomain {
		dc := cfg.Decomposition
		if dc.GhostWidth == 0 {
			dc.GhostWidth = dmax
		}
		d, err := domain.NewDecomposition(dc, sys.Box)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		in.decomp = d
		in.cfg.Decomposition = d.Config()
	}
	return in, nil
}

// System returns the integrated state.
func (in *Integrator) System() *System { return in.sys }

// Oracle returns the overlap oracle over the global state.
func (in *Integrator) Oracle() *Oracle { return in.oracle }

// Fields returns the external field, possibly nil.
func (in *Integrator) Fields() field.Field { return in.fields }

// RNG returns the random source shared with updaters.
func (in *Integrator) RNG() *PartitionedRNG { return in.rng }

// Config returns the effective configuration.
func (in *Integrator) Config() IntegratorConfig { return in.cfg }

// Decomposition returns the domain decomposition, nil outside domain mode.
func (in *Integrator) Decomposition() *domain.Decomposition { return in.decomp }

// Step returns the index of the next sweep.
func (in *Integrator) Step() uint64 { return in.step }

// MoveSize returns the move sizes of type typ.
func (in *Integrator) MoveSize(typ int) MoveConfig { return in.cfg.Moves[typ] }

// SetMoveSize replaces the move sizes of type typ.
func (in *Integrator) SetMoveSize(typ int, m MoveConfig) error {
	if typ < 0 || typ >= len(in.cfg.Moves) {
		return fmt.Errorf("%w: type %d out of range", ErrInvalidConfig, typ)
	}
	if !nonNegative(m.Translate) || !nonNegative(m.Rotate) {
		return fmt.Errorf("%w: move sizes must be non-negative, got %+v", ErrInvalidConfig, m)
	}
	in.cfg.Moves[typ] = m
	return nil
}

// Prepare builds the cell list and verifies the configuration. It returns
// an error wrapping ErrInfeasible if particles overlap or violate a hard
// constraint, and ErrGhostMargin if the decomposition cannot be used.
func (in *Integrator) Prepare() error {
	if err := in.sys.Validate(); err != nil {
		return err
	}
	if err := in.oracle.CheckConfiguration(); err != nil {
		return err
	}
	if err := in.CheckDecomposition(); err != nil {
		return err
	}
	in.prepared = true
	return nil
}

// CheckDecomposition verifies that the current box and shapes still fit the
// domain decomposition: the ghost width covers the largest interaction
// diameter and no partition is narrower than the ghost width. It returns an
// error wrapping ErrGhostMargin otherwise, and nil outside domain mode.
func (in *Integrator) CheckDecomposition() error {
	if in.decomp == nil {
		return nil
	}
	return in.decomp.Validate(in.sys.Box, in.sys.Shapes.MaxDiameter())
}

// ParticlesChanged must be called after particles are inserted or removed
// outside of a sweep.
func (in *Integrator) ParticlesChanged() { in.cells.Invalidate() }

// BoxChanged must be called after the box is replaced.
func (in *Integrator) BoxChanged() { in.cells.Invalidate() }

// ShapesChanged must be called after the shape table is modified.
func (in *Integrator) ShapesChanged() { in.cells.SetWidth(in.sys.Shapes.MaxDiameter()) }

// Run performs n sweeps starting at Step().
func (in *Integrator) Run(n int) error {
	for k := 0; k < n; k++ {
		if err := in.Sweep(in.step); err != nil {
			return err
		}
	}
	return nil
}

// Sweep performs NSelect trial moves per particle in the configured mode.
// The step index seeds every random stream used, so a run is reproducible
// from its seed and step sequence alone.
func (in *Integrator) Sweep(step uint64) error {
	if !in.prepared {
		if err := in.Prepare(); err != nil {
			return err
		}
	}
	nearBefore := in.oracle.NearTolerance()
	var err error
	switch in.cfg.Mode {
	case ModeCheckerboard:
		err = in.sweepCheckerboard(step)
	case ModeDomain:
		err = in.sweepDomain(step)
	default:
		err = in.sweepSerial(step)
	}
	if err != nil {
		return err
	}
	in.step = step + 1
	if near := in.oracle.NearTolerance() - nearBefore; near > 0 {
		logrus.Warnf("sweep %d: %d overlap decisions fell within the tie tolerance", step, near)
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		c := in.Counters()
		logrus.Debugf("sweep %d: translate acceptance %.3f, rotate acceptance %.3f", step, c.TranslateAcceptance(), c.RotateAcceptance())
	}
	return nil
}

// Counters returns statistics summed over types.
func (in *Integrator) Counters() Counters {
	var c Counters
	for t := range in.counts {
		c = c.Add(in.counts[t].load())
	}
	c.OverlapChecks = in.oracle.Checks() - in.baseline.checks
	c.NearTolerance = in.oracle.NearTolerance() - in.baseline.near
	return c
}

// TypeCounters returns the move statistics of type typ. Oracle-wide fields
// are left zero.
func (in *Integrator) TypeCounters(typ int) Counters { return in.counts[typ].load() }

// ResetCounters zeroes all statistics.
func (in *Integrator) ResetCounters() {
	for t := range in.counts {
		in.counts[t].reset()
	}
	in.baseline.checks = in.oracle.Checks()
	in.baseline.near = in.oracle.NearTolerance()
}

// trialEnv is the view one worker has while attempting moves.
type trialEnv struct {
	sys    *System
	oracle *Oracle
	rng    *rand.Rand
	scope  func(i int) scope
	allow  func(pos r3.Vec) bool // region the trial must stay in; nil = anywhere
	commit func(i int, pos r3.Vec)
	local  []Counters
}

// attempt proposes and accepts or rejects one trial move of particle i.
func (in *Integrator) attempt(env *trialEnv, i int) {
	sys := env.sys
	typ := sys.Types[i]
	sh := sys.Shapes.Get(typ)
	m := in.cfg.Moves[typ]
	kind := chooseMove(env.rng, m, sh.Orientable(), in.cfg.TranslateFraction)
	if kind == moveNone {
		return
	}

	cur := sys.Pose(i)
	var trial geom.Pose
	if kind == moveTranslate {
		trial = translate(env.rng, sys.Box, cur, m.Translate, in.cfg.Distribution)
		env.local[typ].TranslateAttempted++
	} else {
		trial = rotate(env.rng, sys.Box.Dimensions, cur, m.Rotate)
		env.local[typ].RotateAttempted++
	}

	if env.allow != nil && !env.allow(trial.Position) {
		return
	}
	sc := scope{skip: i}
	if env.scope != nil {
		sc = env.scope(i)
	}
	if env.oracle.overlapsScoped(typ, trial, sc) {
		return
	}
	if in.fields != nil {
		p := sys.Particle(i)
		if !in.fields.IsCompatible(sys.Box, p.At(trial)) {
			return
		}
		if !metropolis(env.rng, in.fields.EnergyDelta(sys.Box, p, trial)) {
			return
		}
	}

	sys.SetPose(i, trial)
	if kind == moveTranslate {
		env.local[typ].TranslateAccepted++
	} else {
		env.local[typ].RotateAccepted++
	}
	if env.commit != nil {
		env.commit(i, trial.Position)
	}
}

func (in *Integrator) flush(local []Counters) {
	for t, c := range local {
		in.counts[t].add(c)
	}
}
