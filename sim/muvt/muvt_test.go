package muvt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/domain"
	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

func discGas(t *testing.T, l, d float64) *sim.System {
	t.Helper()
	disc, err := shape.NewSphere(d, false)
	require.NoError(t, err)
	return sim.NewSystem(geom.NewBox2D(l, l), sim.NewShapeTable(disc))
}

func integrator(t *testing.T, sys *sim.System, f field.Field, seed int64) *sim.Integrator {
	t.Helper()
	in, err := sim.NewIntegrator(sys, sim.DefaultIntegratorConfig(sys.Shapes.Len()), f, sim.NewPartitionedRNG(sim.NewSimulationKey(seed)))
	require.NoError(t, err)
	require.NoError(t, in.Prepare())
	return in
}

func TestNew_Validation(t *testing.T) {
	in := integrator(t, discGas(t, 10, 1), nil, 1)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing fugacities", Config{}},
		{"too many fugacities", Config{Fugacities: []float64{1, 2}}},
		{"negative fugacity", Config{Fugacities: []float64{-1}}},
		{"negative transfers", Config{Fugacities: []float64{1}, Transfers: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(in, tt.cfg)
			assert.ErrorIs(t, err, sim.ErrInvalidConfig)
		})
	}
}

func TestUpdate_IdealGasReachesPoissonMean(t *testing.T) {
	// GIVEN small discs in a large box, an almost ideal gas
	// WHEN exchange runs long enough to equilibrate
	// THEN the mean particle count approaches z*V
	sys := discGas(t, 20, 0.25)
	in := integrator(t, sys, nil, 3)
	u, err := New(in, Config{Fugacities: []float64{0.1}, Transfers: 100})
	require.NoError(t, err)

	var sum float64
	samples := 0
	for step := uint64(0); step < 300; step++ {
		require.NoError(t, u.Update(step))
		if step >= 50 {
			sum += float64(sys.Len())
			samples++
		}
	}
	mean := sum / float64(samples)
	assert.InDelta(t, 40, mean, 5)

	c := u.Counters(0)
	assert.Greater(t, c.InsertAccepted, int64(0))
	assert.Greater(t, c.RemoveAccepted, int64(0))
	assert.Equal(t, int64(sys.Len()), c.InsertAccepted-c.RemoveAccepted)
	assert.Equal(t, int64(300*100), c.InsertAttempted+c.RemoveAttempted)

	require.NoError(t, in.Oracle().CheckConfiguration())
}

func TestUpdate_TagsAreNeverReused(t *testing.T) {
	sys := discGas(t, 10, 0.5)
	in := integrator(t, sys, nil, 4)
	u, err := New(in, Config{Fugacities: []float64{0.5}, Transfers: 50})
	require.NoError(t, err)

	seen := map[uint64]bool{}
	maxTag := uint64(0)
	for step := uint64(0); step < 40; step++ {
		require.NoError(t, u.Update(step))
		for _, tag := range sys.Tags {
			if !seen[tag] {
				// a tag first appears above every tag seen before it
				if len(seen) > 0 {
					assert.Greater(t, tag, maxTag)
				}
				seen[tag] = true
				maxTag = max(maxTag, tag)
			}
		}
	}
	assert.NotEmpty(t, seen)
}

func TestUpdate_FullBoxRejectsInsertion(t *testing.T) {
	// GIVEN one disc filling a box just larger than itself
	sys := discGas(t, 1.05, 1)
	sys.Add(0, geom.Pose{Orientation: geom.Identity()})
	in := integrator(t, sys, nil, 5)
	u, err := New(in, Config{Fugacities: []float64{1e6}, Transfers: 200})
	require.NoError(t, err)
	tr := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	u.Trace = tr

	// WHEN exchange runs with a huge fugacity
	require.NoError(t, u.Update(0))

	// THEN no second disc fits and deletions are refused at that fugacity
	assert.LessOrEqual(t, sys.Len(), 1)
	c := u.Counters(0)
	assert.Zero(t, c.InsertAccepted)
	require.Len(t, tr.Exchanges, 200)
	for _, r := range tr.Exchanges {
		if r.Insertion {
			assert.Equal(t, "overlap", r.Reason)
		}
	}
}

func TestUpdate_HardWallConfinesInsertions(t *testing.T) {
	sys := discGas(t, 10, 1)
	wall := &field.Wall{Kind: field.WallSphere, Radius: 2, Inside: true}
	require.NoError(t, wall.Validate())
	in := integrator(t, sys, wall, 6)
	u, err := New(in, Config{Fugacities: []float64{1}, Transfers: 200})
	require.NoError(t, err)

	for step := uint64(0); step < 5; step++ {
		require.NoError(t, u.Update(step))
	}
	require.NotZero(t, sys.Len())
	for i := 0; i < sys.Len(); i++ {
		assert.LessOrEqual(t, r3.Norm(sys.Positions[i]), 1.5+1e-9)
	}
	require.NoError(t, in.Oracle().CheckConfiguration())
}

func TestUpdate_ZeroFugacityHoldsTypeFixed(t *testing.T) {
	sys := discGas(t, 10, 1)
	sys.Add(0, geom.Pose{Orientation: geom.Identity()})
	in := integrator(t, sys, nil, 7)
	u, err := New(in, Config{Fugacities: []float64{0}, Transfers: 10})
	require.NoError(t, err)
	require.NoError(t, u.Update(0))
	assert.Equal(t, 1, sys.Len())
	assert.Zero(t, u.Counters(0).RemoveAttempted)
}

func TestUpdate_Deterministic(t *testing.T) {
	run := func() []r3.Vec {
		sys := discGas(t, 10, 0.8)
		in := integrator(t, sys, nil, 8)
		u, err := New(in, Config{Fugacities: []float64{0.3}, Transfers: 30})
		require.NoError(t, err)
		s := sim.NewSimulation(in)
		s.Schedule("muvt", sim.Periodic{Period: 1}, u)
		require.NoError(t, s.Run(20))
		return append([]r3.Vec(nil), sys.Positions...)
	}
	assert.Equal(t, run(), run())
}

func TestPartitionCounts(t *testing.T) {
	sys := discGas(t, 12, 0.5)
	cfg := sim.DefaultIntegratorConfig(1)
	cfg.Mode = sim.ModeDomain
	cfg.Decomposition = domain.Config{Partitions: [3]int{2, 2, 1}}
	in, err := sim.NewIntegrator(sys, cfg, nil, sim.NewPartitionedRNG(sim.NewSimulationKey(9)))
	require.NoError(t, err)
	u, err := New(in, Config{Fugacities: []float64{0.2}, Transfers: 100})
	require.NoError(t, err)
	require.NoError(t, u.Update(0))

	counts := u.PartitionCounts()
	require.Len(t, counts, 4)
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, sys.Len(), total)

	serial := integrator(t, discGas(t, 12, 0.5), nil, 9)
	su, err := New(serial, Config{Fugacities: []float64{0.2}})
	require.NoError(t, err)
	assert.Nil(t, su.PartitionCounts())
}
