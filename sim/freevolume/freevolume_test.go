package freevolume

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

func newEstimator(t *testing.T, sys *sim.System, f field.Field, cfg Config) *Estimator {
	t.Helper()
	o := sim.NewOracle(sys, index.NewCellList(sys.Shapes.MaxDiameter(), 0.2), f, shape.DefaultTolerance())
	e, err := New(o, sim.NewPartitionedRNG(sim.NewSimulationKey(42)), cfg)
	require.NoError(t, err)
	return e
}

func unitSphereSystem(t *testing.T, box geom.Box, n int) *sim.System {
	t.Helper()
	sph, err := shape.NewSphere(1, false)
	require.NoError(t, err)
	sys := sim.NewSystem(box, sim.NewShapeTable(sph))
	for i := 0; i < n; i++ {
		sys.Add(0, geom.Pose{Orientation: geom.Identity()})
	}
	return sys
}

func TestEstimate_EmptyBoxIsFree(t *testing.T) {
	e := newEstimator(t, unitSphereSystem(t, geom.NewBox(3, 3, 3), 0), nil, Config{Samples: 500})
	res, err := e.Estimate(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Fraction)
	assert.Equal(t, 500, res.Free)
	assert.InDelta(t, 27.0, res.Volume, 1e-9)
}

func TestEstimate_ExcludedVolume(t *testing.T) {
	// BDD: one unit sphere excludes a sphere of radius 1 for a unit test sphere
	tests := []struct {
		name string
		box  geom.Box
		want float64
	}{
		{"3D", geom.NewBox(4, 4, 4), 1 - 4.0/3.0*math.Pi/64},
		{"2D", geom.NewBox2D(5, 5), 1 - math.Pi/25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEstimator(t, unitSphereSystem(t, tt.box, 1), nil, Config{Samples: 20000})
			res, err := e.Estimate(3)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Fraction, 0.01)
			assert.Positive(t, res.StdErr)
			assert.Less(t, res.StdErr, 0.01)
		})
	}
}

func TestEstimate_ConvergesToExcludedVolume(t *testing.T) {
	// GIVEN one unit sphere, which excludes a ball of radius 1 for a unit test sphere
	box := geom.NewBox(4, 4, 4)
	want := 1 - 4.0/3.0*math.Pi/64

	// WHEN the sample count grows by factors of four
	var errs []float64
	for k, n := range []int{2000, 8000, 32000} {
		e := newEstimator(t, unitSphereSystem(t, box, 1), nil, Config{Samples: n, Workers: 2})
		res, err := e.Estimate(uint64(100 + k))
		require.NoError(t, err)

		// THEN each estimate lies within three standard errors of the exact value
		assert.InDelta(t, want, res.Fraction, 3*res.StdErr, "samples %d", n)
		errs = append(errs, res.StdErr)
	}

	// AND the standard error halves with every fourfold increase
	for k := 1; k < len(errs); k++ {
		assert.InDelta(t, 0.5, errs[k]/errs[k-1], 0.1, "step %d", k)
	}
}

func TestEstimate_HonorsHardConstraints(t *testing.T) {
	wall := &field.Wall{Kind: field.WallSphere, Radius: 2, Inside: true}
	e := newEstimator(t, unitSphereSystem(t, geom.NewBox(10, 10, 10), 0), wall, Config{Samples: 20000})
	res, err := e.Estimate(0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0*math.Pi*1.5*1.5*1.5/1000, res.Fraction, 0.003)
}

func TestEstimate_IndependentOfWorkers(t *testing.T) {
	box := geom.NewBox(4, 4, 4)
	a := newEstimator(t, unitSphereSystem(t, box, 1), nil, Config{Samples: 5000, Workers: 1})
	b := newEstimator(t, unitSphereSystem(t, box, 1), nil, Config{Samples: 5000, Workers: 4})
	ra, err := a.Estimate(9)
	require.NoError(t, err)
	rb, err := b.Estimate(9)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	sys := unitSphereSystem(t, geom.NewBox(3, 3, 3), 0)
	o := sim.NewOracle(sys, index.NewCellList(1, 0.2), nil, shape.DefaultTolerance())
	rng := sim.NewPartitionedRNG(1)
	for _, cfg := range []Config{{Samples: 0}, {Samples: 10, Type: 1}, {Samples: 10, Workers: -1}} {
		_, err := New(o, rng, cfg)
		assert.ErrorIs(t, err, sim.ErrInvalidConfig, "%+v", cfg)
	}
}

func TestSample_StaysInBox(t *testing.T) {
	box := geom.NewTriclinicBox(3, 4, 5, 0.3, 0.1, 0.2)
	rng := sim.NewPartitionedRNG(2).Stream(sim.SubsystemFreeVolume, 0)
	for k := 0; k < 200; k++ {
		p := Sample(rng, box)
		f := box.Fractional(p.Position)
		for _, c := range []float64{f.X, f.Y, f.Z} {
			assert.GreaterOrEqual(t, c, -1e-12)
			assert.Less(t, c, 1+1e-12)
		}
		assert.True(t, geom.IsUnit(p.Orientation))
	}
}

func TestExcessChemicalPotential(t *testing.T) {
	assert.Equal(t, 0.0, ExcessChemicalPotential(1))
	assert.InDelta(t, math.Ln2, ExcessChemicalPotential(0.5), 1e-12)
	assert.True(t, math.IsInf(ExcessChemicalPotential(0), 1))
}
