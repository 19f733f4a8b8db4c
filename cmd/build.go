package cmd

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/boxresize"
	"github.com/hpmc-sim/hpmc-sim/sim/cluster"
	"github.com/hpmc-sim/hpmc-sim/sim/domain"
	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/freevolume"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/muvt"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
	"github.com/hpmc-sim/hpmc-sim/sim/shapemove"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// Run bundles everything built from a scenario.
type Run struct {
	Scenario   *Scenario
	System     *sim.System
	Integrator *sim.Integrator
	Simulation *sim.Simulation
	Trace      *trace.SimulationTrace

	Cluster    *cluster.Updater
	MuVT       *muvt.Updater
	Shape      *shapemove.Updater
	Resize     *boxresize.Updater
	FreeVolume []freevolume.Result
}

// BuildRun validates s and wires the system, fields, integrator and
// updaters it describes. The initial configuration is checked for overlaps.
func BuildRun(s *Scenario) (*Run, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	sys, err := buildSystem(s)
	if err != nil {
		return nil, err
	}
	fields, err := buildFields(s.Fields, sys)
	if err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(s.Seed))
	in, err := sim.NewIntegrator(sys, buildIntegratorConfig(s), fields, rng)
	if err != nil {
		return nil, err
	}
	if err := in.Prepare(); err != nil {
		return nil, err
	}

	level := trace.TraceLevel(s.Trace)
	if level == "" {
		level = trace.TraceLevelNone
	}
	r := &Run{
		Scenario:   s,
		System:     sys,
		Integrator: in,
		Simulation: sim.NewSimulation(in),
		Trace:      trace.NewSimulationTrace(trace.TraceConfig{Level: level}),
	}
	if level == trace.TraceLevelSweeps {
		r.Simulation.Schedule("trace", sim.Periodic{Period: 1}, r.sweepRecorder())
	}
	if err := r.scheduleUpdaters(); err != nil {
		return nil, err
	}
	return r, nil
}

func buildBox(b BoxSpec) (geom.Box, error) {
	var box geom.Box
	if len(b.L) == 2 {
		box = geom.NewBox2D(b.L[0], b.L[1])
		box.XY = b.XY
	} else {
		box = geom.NewTriclinicBox(b.L[0], b.L[1], b.L[2], b.XY, b.XZ, b.YZ)
	}
	if b.Periodic != nil {
		box.Periodic = [3]bool{}
		copy(box.Periodic[:], b.Periodic)
	}
	if err := box.Validate(); err != nil {
		return box, fmt.Errorf("%w: %v", sim.ErrInvalidConfig, err)
	}
	return box, nil
}

func buildSystem(s *Scenario) (*sim.System, error) {
	box, err := buildBox(s.Box)
	if err != nil {
		return nil, err
	}
	shapes := make([]shape.Shape, len(s.Types))
	for i, t := range s.Types {
		if shapes[i], err = buildShape(t.Shape); err != nil {
			return nil, fmt.Errorf("%w: types[%d] %s: %v", sim.ErrInvalidConfig, i, t.Name, err)
		}
	}
	table := sim.NewShapeTable(shapes...)
	for i, t := range s.Types {
		table.SetName(i, t.Name)
	}
	sys := sim.NewSystem(box, table)

	idx := s.typeIndex()
	total := 0
	for _, l := range s.Lattice {
		total += l.Count
	}
	sites := geom.Lattice(box, total)
	k := 0
	for _, l := range s.Lattice {
		for c := 0; c < l.Count; c++ {
			sys.Add(idx[l.Type], geom.Pose{Position: sites[k], Orientation: geom.Identity()})
			k++
		}
	}
	for i, p := range s.Particles {
		pos, err := vec3(p.Position)
		if err != nil {
			return nil, fmt.Errorf("particles[%d]: %w", i, err)
		}
		q, err := orientation(p.Orientation)
		if err != nil {
			return nil, fmt.Errorf("particles[%d]: %w", i, err)
		}
		pos, _ = box.Wrap(pos)
		sys.Add(idx[p.Type], geom.Pose{Position: pos, Orientation: q})
	}
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	logrus.Infof("built %dD system with %d particles of %d types", box.Dimensions, sys.Len(), table.Len())
	return sys, nil
}

// buildFields returns nil when no field is configured.
func buildFields(spec FieldsSpec, sys *sim.System) (field.Field, error) {
	var fields []field.Field
	for i, w := range spec.Walls {
		origin, err := vecN(w.Origin)
		if err != nil {
			return nil, fmt.Errorf("fields.walls[%d].origin: %w", i, err)
		}
		normal, err := vecN(w.Normal)
		if err != nil {
			return nil, fmt.Errorf("fields.walls[%d].normal: %w", i, err)
		}
		wall := &field.Wall{Kind: field.WallKind(w.Kind), Origin: origin, Normal: normal, Radius: w.Radius, Inside: w.Inside, K: w.K}
		if err := wall.Validate(); err != nil {
			return nil, fmt.Errorf("%w: fields.walls[%d]: %v", sim.ErrInvalidConfig, i, err)
		}
		fields = append(fields, wall)
	}
	if h := spec.Harmonic; h != nil {
		refs := make(map[uint64]field.Reference, sys.Len())
		for i := 0; i < sys.Len(); i++ {
			refs[sys.Tags[i]] = field.Reference{Position: sys.Positions[i], Orientation: sys.Orientations[i]}
		}
		fields = append(fields, &field.Harmonic{KTranslate: h.KTranslate, KRotate: h.KRotate, References: refs})
	}
	switch len(fields) {
	case 0:
		return nil, nil
	case 1:
		return fields[0], nil
	}
	return field.NewComposite(fields...), nil
}

func buildIntegratorConfig(s *Scenario) sim.IntegratorConfig {
	cfg := sim.DefaultIntegratorConfig(len(s.Types))
	for i, t := range s.Types {
		if t.Move != nil {
			cfg.Moves[i] = sim.MoveConfig{Translate: t.Move.Translate, Rotate: t.Move.Rotate}
		}
	}
	is := s.Integrator
	if is.Mode != "" {
		cfg.Mode = sim.Mode(is.Mode)
	}
	if is.NSelect != 0 {
		cfg.NSelect = is.NSelect
	}
	if is.TranslateFraction != nil {
		cfg.TranslateFraction = *is.TranslateFraction
	}
	if is.Distribution != "" {
		cfg.Distribution = sim.Distribution(is.Distribution)
	}
	if is.Epsilon != nil {
		cfg.Epsilon = *is.Epsilon
	}
	cfg.Workers = is.Workers
	cfg.Margin = is.Margin
	copy(cfg.Decomposition.Partitions[:], is.Partitions)
	cfg.Decomposition.GhostWidth = is.GhostWidth
	cfg.Decomposition.CheckConsistency = is.CheckConsistency
	if is.RandomShift != nil {
		cfg.Decomposition.RandomShift = *is.RandomShift
	}
	return cfg
}

// every returns a trigger firing each period steps, default every step.
func every(period uint64) sim.Trigger {
	if period == 0 {
		period = 1
	}
	return sim.Periodic{Period: period}
}

func (r *Run) scheduleUpdaters() error {
	u := r.Scenario.Updaters
	idx := r.Scenario.typeIndex()
	in := r.Integrator

	if c := u.Cluster; c != nil {
		cfg := cluster.DefaultConfig()
		if len(c.Generators) > 0 {
			cfg.Generators = nil
			for _, g := range c.Generators {
				cfg.Generators = append(cfg.Generators, cluster.Generator(g))
			}
		}
		if c.FlipProbability != 0 {
			cfg.FlipProbability = c.FlipProbability
		}
		cu, err := cluster.New(in, cfg)
		if err != nil {
			return fmt.Errorf("updaters.cluster: %w", err)
		}
		cu.Trace = r.Trace
		r.Cluster = cu
		r.Simulation.Schedule("cluster", every(c.Period), cu)
	}

	if m := u.MuVT; m != nil {
		z := make([]float64, len(idx))
		for name, f := range m.Fugacities {
			z[idx[name]] = f
		}
		mu, err := muvt.New(in, muvt.Config{Fugacities: z, Transfers: m.Transfers})
		if err != nil {
			return fmt.Errorf("updaters.muvt: %w", err)
		}
		mu.Trace = r.Trace
		r.MuVT = mu
		r.Simulation.Schedule("muvt", every(m.Period), mu)
	}

	if sm := u.Shape; sm != nil {
		var move shapemove.Move
		switch sm.Move {
		case "vertex":
			move = shapemove.VertexMove{Step: sm.Step, NormalizeArea: sm.NormalizeArea}
		default:
			move = shapemove.ScaleMove{Step: sm.Step}
		}
		cfg := shapemove.Config{Attempts: sm.Attempts, Beta: sm.Beta}
		for _, n := range sm.Types {
			cfg.Types = append(cfg.Types, idx[n])
		}
		su, err := shapemove.New(in, move, cfg)
		if err != nil {
			return fmt.Errorf("updaters.shape: %w", err)
		}
		su.Trace = r.Trace
		r.Shape = su
		r.Simulation.Schedule("shape", every(sm.Period), su)
	}

	if rs := u.Resize; rs != nil {
		to, err := buildBox(rs.To)
		if err != nil {
			return fmt.Errorf("updaters.resize.to: %w", err)
		}
		var v sim.Variant = sim.Ramp{A: 0, B: 1, Start: rs.Start, Length: rs.Length}
		if rs.Power > 0 {
			v = sim.Power{A: 0, B: 1, P: rs.Power, Start: rs.Start, Length: rs.Length}
		}
		bu, err := boxresize.New(in, r.System.Box, to, v)
		if err != nil {
			return fmt.Errorf("updaters.resize: %w", err)
		}
		if len(rs.Types) > 0 {
			types := make([]int, len(rs.Types))
			for i, n := range rs.Types {
				types[i] = idx[n]
			}
			bu.Filter = boxresize.Types(types...)
		}
		bu.Trace = r.Trace
		r.Resize = bu
		r.Simulation.Schedule("resize", every(rs.Period), bu)
	}

	if p := r.Scenario.Integrator.BalancePeriod; p > 0 && in.Decomposition() != nil {
		lb := domain.NewLoadBalancer()
		r.Simulation.Schedule("balance", every(p), sim.UpdaterFunc(func(step uint64) error {
			if lb.Balance(in.Decomposition(), r.System.Box, r.System) {
				logrus.Debugf("step %d: partition imbalance now %.3f", step, domain.Imbalance(in.Decomposition().Counts(r.System.Box, r.System)))
			}
			return nil
		}))
	}

	if t := u.Tune; t != nil {
		tuner := sim.NewMoveSizeTuner(in, t.Target)
		tuner.MaxTranslate = t.MaxTranslate
		var trig sim.Trigger = every(t.Period)
		if t.Until > 0 {
			trig = sim.And{trig, sim.Before{Step: t.Until}}
		}
		r.Simulation.Schedule("tune", trig, tuner)
	}

	if fv := u.FreeVolume; fv != nil {
		est, err := freevolume.New(in.Oracle(), in.RNG(), freevolume.Config{Type: idx[fv.Type], Samples: fv.Samples, Workers: in.Config().Workers})
		if err != nil {
			return fmt.Errorf("updaters.free_volume: %w", err)
		}
		r.Simulation.Schedule("free_volume", every(fv.Period), sim.UpdaterFunc(func(step uint64) error {
			res, err := est.Estimate(step)
			if err != nil {
				return err
			}
			r.FreeVolume = append(r.FreeVolume, res)
			logrus.Infof("step %d: free volume fraction %.4f +/- %.4f", step, res.Fraction, res.StdErr)
			return nil
		}))
	}
	return nil
}

// sweepRecorder traces the move statistics of each sweep.
func (r *Run) sweepRecorder() sim.Updater {
	var last sim.Counters
	return sim.UpdaterFunc(func(step uint64) error {
		now := r.Integrator.Counters()
		w := now.Sub(last)
		last = now
		r.Trace.RecordSweep(trace.SweepRecord{
			Step:          step,
			Attempted:     w.TranslateAttempted + w.RotateAttempted,
			Accepted:      w.TranslateAccepted + w.RotateAccepted,
			OverlapChecks: w.OverlapChecks,
		})
		return nil
	})
}

func vertices2(vs [][]float64) ([]r2.Vec, error) {
	out := make([]r2.Vec, len(vs))
	for i, v := range vs {
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: vertex %d needs 2 components, got %d", shape.ErrInvalidShape, i, len(v))
		}
		out[i] = r2.Vec{X: v[0], Y: v[1]}
	}
	return out, nil
}

func vertices3(vs [][]float64) ([]r3.Vec, error) {
	out := make([]r3.Vec, len(vs))
	for i, v := range vs {
		if len(v) != 3 {
			return nil, fmt.Errorf("%w: vertex %d needs 3 components, got %d", shape.ErrInvalidShape, i, len(v))
		}
		out[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	return out, nil
}

func vec3(v []float64) (r3.Vec, error) {
	if len(v) != 3 {
		return r3.Vec{}, fmt.Errorf("need 3 components, got %d", len(v))
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// vecN accepts 0, 2 or 3 components; missing ones are zero.
func vecN(v []float64) (r3.Vec, error) {
	switch len(v) {
	case 0:
		return r3.Vec{}, nil
	case 2:
		return r3.Vec{X: v[0], Y: v[1]}, nil
	case 3:
		return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	return r3.Vec{}, fmt.Errorf("need 2 or 3 components, got %d", len(v))
}

// orientation parses (w, x, y, z); empty means the identity. The
// quaternion must already be normalized.
func orientation(v []float64) (quat.Number, error) {
	if len(v) == 0 {
		return geom.Identity(), nil
	}
	if len(v) != 4 {
		return quat.Number{}, fmt.Errorf("orientation needs 4 components, got %d", len(v))
	}
	q := quat.Number{Real: v[0], Imag: v[1], Jmag: v[2], Kmag: v[3]}
	if math.Abs(quat.Abs(q)-1) > 1e-9 {
		return q, fmt.Errorf("%w: orientation %v is not a unit quaternion", sim.ErrInvalidConfig, v)
	}
	return q, nil
}
