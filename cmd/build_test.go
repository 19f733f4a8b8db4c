package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/freevolume"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", name))
	require.NoError(t, err)
	return s
}

func TestBuildRun_HardSpheres(t *testing.T) {
	// GIVEN the hard-sphere scenario with every sphere updater enabled
	s := loadTestdata(t, "hard_spheres.yaml")
	r, err := BuildRun(s)
	require.NoError(t, err)
	require.NotNil(t, r.Cluster)
	require.NotNil(t, r.MuVT)
	assert.Equal(t, sim.ModeCheckerboard, r.Integrator.Config().Mode)

	// WHEN it runs
	require.NoError(t, r.Simulation.Run(s.Sweeps))

	// THEN the state stays feasible and the updaters left their traces
	require.NoError(t, r.Integrator.Oracle().CheckConfiguration())
	assert.Equal(t, uint64(s.Sweeps), r.Integrator.Step())
	assert.Len(t, r.Trace.Sweeps, s.Sweeps)
	assert.Len(t, r.Trace.Clusters, 3) // steps 0, 2, 4
	assert.Len(t, r.Trace.Exchanges, 10*s.Sweeps)
	assert.Len(t, r.FreeVolume, 1)
	assert.Greater(t, r.FreeVolume[0].Fraction, 0.0)
}

func TestBuildRun_SquaresInDomains(t *testing.T) {
	s := loadTestdata(t, "squares_2d.yaml")
	r, err := BuildRun(s)
	require.NoError(t, err)
	require.NotNil(t, r.Integrator.Decomposition())
	require.NotNil(t, r.Shape)
	require.NotNil(t, r.Resize)

	require.NoError(t, r.Simulation.Run(s.Sweeps))

	require.NoError(t, r.Integrator.Oracle().CheckConfiguration())
	// step 0 of the ramp is the starting box, so it is skipped
	assert.Equal(t, int64(s.Sweeps-1), r.Resize.Applied()+r.Resize.Refused())
	assert.Len(t, r.Trace.Shapes, 2*s.Sweeps)
	assert.Empty(t, r.Trace.Sweeps, "decisions level does not record sweeps")
}

func TestBuildRun_Deterministic(t *testing.T) {
	run := func(workers int) []r3.Vec {
		s := loadTestdata(t, "hard_spheres.yaml")
		s.Integrator.Workers = workers
		r, err := BuildRun(s)
		require.NoError(t, err)
		require.NoError(t, r.Simulation.Run(s.Sweeps))
		return append([]r3.Vec(nil), r.System.Positions...)
	}
	assert.Equal(t, run(1), run(4))
}

func TestBuildRun_OverlappingStartRejected(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	s.Particles = []ParticleSpec{
		{Type: "A", Position: []float64{0.1, 0.1, 0.1}},
		{Type: "A", Position: []float64{0.2, 0.1, 0.1}},
	}
	s.Lattice = nil
	_, err = BuildRun(s)
	assert.ErrorIs(t, err, sim.ErrInfeasible)
}

func TestBuildFields(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	sys, err := buildSystem(s)
	require.NoError(t, err)

	f, err := buildFields(FieldsSpec{}, sys)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = buildFields(FieldsSpec{Harmonic: &HarmonicSpec{KTranslate: 10}}, sys)
	require.NoError(t, err)
	h, ok := f.(*field.Harmonic)
	require.True(t, ok)
	assert.Len(t, h.References, sys.Len())

	f, err = buildFields(FieldsSpec{
		Walls:    []WallSpec{{Kind: "plane", Normal: []float64{0, 0, 1}, Origin: []float64{0, 0, -2.5}}},
		Harmonic: &HarmonicSpec{KTranslate: 10},
	}, sys)
	require.NoError(t, err)
	_, ok = f.(*field.Composite)
	assert.True(t, ok)

	_, err = buildFields(FieldsSpec{Walls: []WallSpec{{Kind: "plane", Normal: []float64{0, 0, 2}}}}, sys)
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}

func TestBuildIntegratorConfig_Overrides(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	frac, eps, shift := 0.8, 1e-6, false
	s.Types[0].Move = &MoveSpec{Translate: 0.3, Rotate: 0.2}
	s.Integrator = IntegratorSpec{
		Mode: "domain", NSelect: 2, TranslateFraction: &frac, Distribution: "gaussian",
		Epsilon: &eps, Partitions: []int{2, 1, 1}, GhostWidth: 1.5, RandomShift: &shift,
	}
	cfg := buildIntegratorConfig(s)
	assert.Equal(t, sim.MoveConfig{Translate: 0.3, Rotate: 0.2}, cfg.Moves[0])
	assert.Equal(t, sim.ModeDomain, cfg.Mode)
	assert.Equal(t, 2, cfg.NSelect)
	assert.Equal(t, 0.8, cfg.TranslateFraction)
	assert.Equal(t, sim.DistributionGaussian, cfg.Distribution)
	assert.Equal(t, 1e-6, cfg.Epsilon)
	assert.Equal(t, [3]int{2, 1, 1}, cfg.Decomposition.Partitions)
	assert.False(t, cfg.Decomposition.RandomShift)
}

func TestPrintSummary(t *testing.T) {
	s := loadTestdata(t, "hard_spheres.yaml")
	r, err := BuildRun(s)
	require.NoError(t, err)
	require.NoError(t, r.Simulation.Run(s.Sweeps))

	var buf bytes.Buffer
	PrintSummary(&buf, r, 1500*time.Millisecond)
	out := buf.String()
	assert.Contains(t, out, "=== HPMC Summary ===")
	assert.Contains(t, out, "Translate Acceptance")
	assert.Contains(t, out, "Cluster Moves")
	assert.Contains(t, out, "=== Trace Summary ===")
	assert.Contains(t, out, "Wall Time            : 1.5s")
}

func TestPrintFreeVolume(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	r, err := BuildRun(s)
	require.NoError(t, err)
	var buf bytes.Buffer
	PrintFreeVolume(&buf, "A", freeVolumeOf(t, r))
	assert.Contains(t, buf.String(), "Test Particle        : A")
	assert.Contains(t, buf.String(), "Samples              : 10,000")
}

func freeVolumeOf(t *testing.T, r *Run) freevolume.Result {
	t.Helper()
	est, err := freevolume.New(r.Integrator.Oracle(), r.Integrator.RNG(), freevolume.Config{Samples: 10000})
	require.NoError(t, err)
	res, err := est.Estimate(0)
	require.NoError(t, err)
	return res
}
