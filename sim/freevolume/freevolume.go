// Package freevolume estimates the volume available to inserting a test
// particle into a configuration, by uniform trial insertion. The same
// sampler drives grand canonical insertions.
package freevolume

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// chunkSize is the number of insertions sharing one random stream. Chunks
// are the unit of parallel work, so estimates do not depend on the worker
// count.
const chunkSize = 1024

// Config groups estimator parameters.
type Config struct {
	Type    int // type of the test particle
	Samples int // trial insertions per estimate
	Workers int // 0 = one per CPU
}

// Result is one free-volume estimate.
type Result struct {
	Samples  int
	Free     int
	Fraction float64 // Free / Samples
	StdErr   float64 // standard error of Fraction across chunks
	Volume   float64 // Fraction times the box volume
}

// Estimator measures free volume against the state an oracle reads.
type Estimator struct {
	oracle *sim.Oracle
	rng    *sim.PartitionedRNG
	cfg    Config
}

// New returns an estimator.
func New(oracle *sim.Oracle, rng *sim.PartitionedRNG, cfg Config) (*Estimator, error) {
	if cfg.Samples < 1 {
		return nil, fmt.Errorf("%w: free volume samples must be positive, got %d", sim.ErrInvalidConfig, cfg.Samples)
	}
	if n := oracle.System().Shapes.Len(); cfg.Type < 0 || cfg.Type >= n {
		return nil, fmt.Errorf("%w: test particle type %d out of range [0,%d)", sim.ErrInvalidConfig, cfg.Type, n)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be non-negative, got %d", sim.ErrInvalidConfig, cfg.Workers)
	}
	return &Estimator{oracle: oracle, rng: rng, cfg: cfg}, nil
}

// Sample draws a uniform pose in box: a uniform fractional position and a
// uniform orientation (about z in 2D).
func Sample(rng *rand.Rand, box geom.Box) geom.Pose {
	f := r3.Vec{X: rng.Float64(), Y: rng.Float64()}
	if box.Dimensions == 3 {
		f.Z = rng.Float64()
	}
	x := box.FromFractional(f)
	if box.Dimensions == 2 {
		x.Z = 0
	}
	return geom.Pose{Position: x, Orientation: geom.RandomOrientation(rng, box.Dimensions)}
}

// Estimate inserts Samples test particles at uniform poses and counts those
// that overlap nothing and satisfy every hard constraint. The state must not
// change during the call.
func (e *Estimator) Estimate(step uint64) (Result, error) {
	if err := e.oracle.Refresh(); err != nil {
		return Result{}, err
	}
	sys := e.oracle.System()
	box := sys.Box
	nchunks := (e.cfg.Samples + chunkSize - 1) / chunkSize
	free := make([]int, nchunks)
	sizes := make([]int, nchunks)
	sim.ParallelFor(e.cfg.Workers, nchunks, func(c int) {
		rng := e.rng.Stream(sim.SubsystemFreeVolume, step, uint64(c))
		n := chunkSize
		if last := e.cfg.Samples - c*chunkSize; last < n {
			n = last
		}
		sizes[c] = n
		for k := 0; k < n; k++ {
			pose := Sample(rng, box)
			if e.oracle.ProbeOverlaps(e.cfg.Type, pose) {
				continue
			}
			if !e.oracle.Compatible(sys.Probe(e.cfg.Type, pose)) {
				continue
			}
			free[c]++
		}
	})

	res := Result{Samples: e.cfg.Samples}
	fractions := make([]float64, nchunks)
	weights := make([]float64, nchunks)
	for c := range free {
		res.Free += free[c]
		fractions[c] = float64(free[c]) / float64(sizes[c])
		weights[c] = float64(sizes[c])
	}
	res.Fraction = float64(res.Free) / float64(res.Samples)
	if nchunks > 1 {
		_, std := stat.MeanStdDev(fractions, weights)
		res.StdErr = stat.StdErr(std, float64(nchunks))
	} else {
		res.StdErr = math.Sqrt(res.Fraction * (1 - res.Fraction) / float64(res.Samples))
	}
	res.Volume = res.Fraction * box.Volume()
	logrus.Debugf("step %d: free volume fraction %.4f +/- %.4f over %d insertions", step, res.Fraction, res.StdErr, res.Samples)
	return res, nil
}

// ExcessChemicalPotential returns the Widom estimate -ln(fraction) in kT.
// It is +Inf when no insertion succeeded.
func ExcessChemicalPotential(fraction float64) float64 {
	if fraction <= 0 {
		return math.Inf(1)
	}
	return -math.Log(fraction)
}
