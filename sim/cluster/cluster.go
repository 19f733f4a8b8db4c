// Package cluster implements rejection-free geometric cluster moves.
//
// A move draws an isometric involution T that preserves the periodic
// lattice (a pi rotation about a lattice-preserving axis, or a mirror
// plane), links particle i to every j that T(i) overlaps in the current
// configuration, and transforms each connected component with probability
// FlipProbability. With purely hard interactions no transformed state can
// overlap, so nothing is ever rejected. External fields add a per-component
// hard check and a Metropolis test on the component's energy change.
package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

// Generator names a cluster transformation.
type Generator string

const (
	GeneratorPivot      Generator = "pivot"      // pi rotation (point inversion in 2D)
	GeneratorReflection Generator = "reflection" // mirror plane, spheres only
)

// Config groups cluster updater parameters.
type Config struct {
	Generators      []Generator // drawn uniformly per move; default pivot
	FlipProbability float64     // per-component flip probability in (0,1]
}

// DefaultConfig returns pivot moves with flip probability 1/2.
func DefaultConfig() Config {
	return Config{Generators: []Generator{GeneratorPivot}, FlipProbability: 0.5}
}

// Counters aggregates cluster move statistics for one generator.
type Counters struct {
	Moves             int64
	Clusters          int64
	ClustersFlipped   int64
	ParticlesFlipped  int64
	Rejections        int64
	ParticlesClusters int64 // particles summed over all components
}

// AverageClusterSize returns the mean component size, 0 before any move.
func (c Counters) AverageClusterSize() float64 {
	if c.Clusters == 0 {
		return 0
	}
	return float64(c.ParticlesClusters) / float64(c.Clusters)
}

// Updater performs cluster moves on an integrator's state.
type Updater struct {
	in     *sim.Integrator
	cfg    Config
	counts map[Generator]*Counters

	// Trace receives one record per move when non-nil.
	Trace *trace.SimulationTrace
}

// New validates cfg and returns an updater for in.
func New(in *sim.Integrator, cfg Config) (*Updater, error) {
	if len(cfg.Generators) == 0 {
		cfg.Generators = []Generator{GeneratorPivot}
	}
	if !(cfg.FlipProbability > 0 && cfg.FlipProbability <= 1) {
		return nil, fmt.Errorf("%w: flip probability must be in (0,1], got %f", sim.ErrInvalidConfig, cfg.FlipProbability)
	}
	counts := make(map[Generator]*Counters)
	for _, g := range cfg.Generators {
		switch g {
		case GeneratorPivot:
		case GeneratorReflection:
			if err := spheresOnly(in.System()); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown cluster generator %q", sim.ErrInvalidConfig, g)
		}
		counts[g] = &Counters{}
	}
	cfg.Generators = append([]Generator(nil), cfg.Generators...)
	return &Updater{in: in, cfg: cfg, counts: counts}, nil
}

func spheresOnly(sys *sim.System) error {
	for t := 0; t < sys.Shapes.Len(); t++ {
		if sys.Shapes.Get(t).Kind() != shape.KindSphere {
			return fmt.Errorf("%w: reflection moves need spheres, type %d is a %s", sim.ErrInvalidConfig, t, sys.Shapes.Get(t).Kind())
		}
	}
	return nil
}

// Counters returns the statistics of generator g.
func (u *Updater) Counters(g Generator) Counters {
	if c, ok := u.counts[g]; ok {
		return *c
	}
	return Counters{}
}

// Total returns statistics summed over generators.
func (u *Updater) Total() Counters {
	var t Counters
	for _, c := range u.counts {
		t.Moves += c.Moves
		t.Clusters += c.Clusters
		t.ClustersFlipped += c.ClustersFlipped
		t.ParticlesFlipped += c.ParticlesFlipped
		t.Rejections += c.Rejections
		t.ParticlesClusters += c.ParticlesClusters
	}
	return t
}

// Update performs one cluster move. It implements sim.Updater.
func (u *Updater) Update(step uint64) error {
	oracle := u.in.Oracle()
	if err := oracle.Refresh(); err != nil {
		return err
	}
	sys := u.in.System()
	rng := u.in.RNG().Stream(sim.SubsystemCluster, step)

	gen := u.cfg.Generators[0]
	if len(u.cfg.Generators) > 1 {
		gen = u.cfg.Generators[rng.Intn(len(u.cfg.Generators))]
	}
	t, ok := drawTransform(rng, sys.Box, gen)
	if !ok {
		logrus.Warnf("step %d: no lattice-preserving %s transform for this box", step, gen)
		return nil
	}

	n := sys.Len()
	moved := make([]geom.Pose, n)
	for i := 0; i < n; i++ {
		moved[i] = t.apply(sys.Box, sys.Pose(i), sys.Shapes.Get(sys.Types[i]).Orientable())
	}
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		oracle.ForEachOverlap(sys.Types[i], moved[i], i, func(j int) {
			if !g.HasEdgeBetween(int64(i), int64(j)) {
				g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
			}
		})
	}
	components := sortedComponents(topo.ConnectedComponents(g))

	c := u.counts[gen]
	c.Moves++
	rec := trace.ClusterRecord{Step: step, Generator: string(gen), Clusters: len(components)}
	fields := u.in.Fields()
	for _, comp := range components {
		c.Clusters++
		c.ParticlesClusters += int64(len(comp))
		rec.Largest = max(rec.Largest, len(comp))
		if rng.Float64() >= u.cfg.FlipProbability {
			continue
		}
		if fields != nil && !u.fieldsAccept(rng, comp, moved) {
			c.Rejections++
			rec.Rejected++
			continue
		}
		for _, i := range comp {
			sys.SetPose(i, moved[i])
		}
		c.ClustersFlipped++
		c.ParticlesFlipped += int64(len(comp))
		rec.Flipped++
	}
	u.in.ParticlesChanged()
	u.Trace.RecordCluster(rec)
	logrus.Debugf("step %d: %s move flipped %d of %d clusters (largest %d)", step, gen, rec.Flipped, rec.Clusters, rec.Largest)
	return nil
}

// fieldsAccept applies hard constraints and Metropolis to one component.
func (u *Updater) fieldsAccept(rng *rand.Rand, comp []int, moved []geom.Pose) bool {
	sys := u.in.System()
	fields := u.in.Fields()
	dU := 0.0
	for _, i := range comp {
		p := sys.Particle(i)
		if !fields.IsCompatible(sys.Box, p.At(moved[i])) {
			return false
		}
		dU += fields.EnergyDelta(sys.Box, p, moved[i])
	}
	return dU <= 0 || rng.Float64() < math.Exp(-dU)
}

// sortedComponents converts gonum components into index lists sorted
// internally and by their smallest member.
func sortedComponents(cc [][]graph.Node) [][]int {
	out := make([][]int, len(cc))
	for k, nodes := range cc {
		ids := make([]int, len(nodes))
		for m, nd := range nodes {
			ids[m] = int(nd.ID())
		}
		sort.Ints(ids)
		out[k] = ids
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// transform is x -> c + M(x - c) with M an orthogonal involution, and
// orientations q -> rot * q when rot is set.
type transform struct {
	center r3.Vec
	linear func(r3.Vec) r3.Vec
	rot    *quat.Number
}

func (t transform) apply(box geom.Box, p geom.Pose, orientable bool) geom.Pose {
	x := r3.Add(t.center, t.linear(r3.Sub(p.Position, t.center)))
	x, _ = box.Wrap(x)
	if box.Dimensions == 2 {
		x.Z = 0
	}
	q := p.Orientation
	if orientable && t.rot != nil {
		q = geom.Normalize(geom.Compose(*t.rot, q))
	}
	return geom.Pose{Position: x, Orientation: q}
}

// drawTransform picks a uniform center and a random lattice-preserving axis
// or plane normal. It reports false when the box admits none.
func drawTransform(rng *rand.Rand, box geom.Box, gen Generator) (transform, bool) {
	f := r3.Vec{X: rng.Float64(), Y: rng.Float64()}
	if box.Dimensions == 3 {
		f.Z = rng.Float64()
	}
	center := box.FromFractional(f)
	if box.Dimensions == 2 {
		center.Z = 0
	}

	if gen == GeneratorPivot && box.Dimensions == 2 {
		rot := geom.AxisAngle(r3.Vec{Z: 1}, math.Pi)
		return transform{center: center, linear: func(v r3.Vec) r3.Vec { return r3.Vec{X: -v.X, Y: -v.Y, Z: v.Z} }, rot: &rot}, true
	}

	var axes []r3.Vec
	for _, a := range candidateAxes(box) {
		m := linearFor(gen, a)
		if box.PreservesLattice(m) {
			axes = append(axes, a)
		}
	}
	if len(axes) == 0 {
		return transform{}, false
	}
	a := axes[rng.Intn(len(axes))]
	t := transform{center: center, linear: linearFor(gen, a)}
	if gen == GeneratorPivot {
		rot := geom.AxisAngle(a, math.Pi)
		t.rot = &rot
	}
	return t, true
}

// candidateAxes lists the Cartesian axes and the normalized lattice vectors
// in the plane of motion.
func candidateAxes(box geom.Box) []r3.Vec {
	out := []r3.Vec{{X: 1}, {Y: 1}}
	if box.Dimensions == 3 {
		out = append(out, r3.Vec{Z: 1})
	}
	a1, a2, a3 := box.LatticeVectors()
	lattice := []r3.Vec{a1, a2}
	if box.Dimensions == 3 {
		lattice = append(lattice, a3)
	}
	for _, a := range lattice {
		u := r3.Unit(a)
		dup := false
		for _, o := range out {
			if math.Abs(math.Abs(r3.Dot(u, o))-1) < 1e-12 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, u)
		}
	}
	return out
}

// linearFor returns the pi rotation about a (pivot) or the mirror through
// the plane with normal a (reflection).
func linearFor(gen Generator, a r3.Vec) func(r3.Vec) r3.Vec {
	if gen == GeneratorReflection {
		return func(v r3.Vec) r3.Vec { return r3.Sub(v, r3.Scale(2*r3.Dot(v, a), a)) }
	}
	return func(v r3.Vec) r3.Vec { return r3.Sub(r3.Scale(2*r3.Dot(v, a), a), v) }
}
