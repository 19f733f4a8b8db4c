package sim

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/field"
	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

func TestOracle_TwoDiscs(t *testing.T) {
	tests := []struct {
		name    string
		sep     float64
		overlap bool
	}{
		{"apart", 2, false},
		{"overlapping", 0.9, true},
		{"touching counts as overlap", 1, true},
		{"just apart", 1 + 1e-6, false},
		{"through the periodic boundary", 9.1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := discPair(t, 0)
			o := newTestOracle(t, sys)
			pose := geom.Pose{Position: r3.Vec{X: tt.sep}, Orientation: geom.Identity()}
			if tt.sep > 5 {
				pose.Position, _ = sys.Box.Wrap(pose.Position)
			}
			assert.Equal(t, tt.overlap, o.Overlaps(0, pose, 1))
		})
	}
}

func TestOracle_CheckConfiguration(t *testing.T) {
	// BDD: an overlapping pair is reported with both tags
	o := newTestOracle(t, discPair(t, 0.5))
	err := o.CheckConfiguration()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))
	assert.Contains(t, err.Error(), "tag 0")

	o = newTestOracle(t, discPair(t, 3))
	assert.NoError(t, o.CheckConfiguration())
	n, err := o.CountOverlaps()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOracle_SelfImage(t *testing.T) {
	// BDD: a particle wider than the box overlaps its own periodic image
	disc, _ := shape.NewSphere(1, false)
	sys := NewSystem(geom.NewBox2D(0.9, 10), NewShapeTable(disc))
	sys.Add(0, geom.Pose{Orientation: geom.Identity()})
	o := newTestOracle(t, sys)
	assert.True(t, o.Overlaps(0, sys.Pose(0), 0))
	err := o.CheckConfiguration()
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Contains(t, err.Error(), "own periodic image")

	var seen []int
	o.ForEachOverlap(0, sys.Pose(0), 0, func(j int) { seen = append(seen, j) })
	assert.Empty(t, seen, "self-images are not neighbors")
}

func TestOracle_ForEachOverlap(t *testing.T) {
	sys := discPair(t, 0.8)
	sys.Add(0, geom.Pose{Position: r3.Vec{X: -0.8}, Orientation: geom.Identity()})
	sys.Add(0, geom.Pose{Position: r3.Vec{X: 3}, Orientation: geom.Identity()})
	o := newTestOracle(t, sys)
	var seen []int
	o.ForEachOverlap(0, sys.Pose(0), 0, func(j int) { seen = append(seen, j) })
	assert.ElementsMatch(t, []int{1, 2}, seen)
	n, err := o.CountOverlaps()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOracle_Fields(t *testing.T) {
	// BDD: a hard wall vetoes poses that overlap poses outside it
	sys := discPair(t, 3)
	wall := &field.Wall{Kind: field.WallSphere, Radius: 2, Inside: true}
	o := NewOracle(sys, index.NewCellList(1, 0.3), wall, shape.DefaultTolerance())
	require.NoError(t, o.Refresh())
	assert.False(t, o.Feasible(sys.Particle(1), 1))
	assert.True(t, o.Feasible(sys.Particle(0), 0))
	assert.ErrorIs(t, o.CheckConfiguration(), ErrInfeasible)
}

func TestOracle_MatchesBruteForce(t *testing.T) {
	// BDD: cell-list queries agree with an all-pairs scan over every image
	cube, err := shape.NewConvexPolyhedron([]r3.Vec{
		{X: -0.5, Y: -0.5, Z: -0.5}, {X: 0.5, Y: -0.5, Z: -0.5}, {X: 0.5, Y: 0.5, Z: -0.5}, {X: -0.5, Y: 0.5, Z: -0.5},
		{X: -0.5, Y: -0.5, Z: 0.5}, {X: 0.5, Y: -0.5, Z: 0.5}, {X: 0.5, Y: 0.5, Z: 0.5}, {X: -0.5, Y: 0.5, Z: 0.5},
	}, 0)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	sys := NewSystem(geom.NewTriclinicBox(5, 5, 5, 0.2, 0, 0.1), NewShapeTable(cube))
	for i := 0; i < 60; i++ {
		f := r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
		sys.Add(0, geom.Pose{Position: sys.Box.FromFractional(f), Orientation: geom.RandomOrientation(rng, 3)})
	}
	o := newTestOracle(t, sys)
	tol := shape.DefaultTolerance()
	for i := 0; i < sys.Len(); i++ {
		want := false
		for j := 0; j < sys.Len() && !want; j++ {
			if j == i {
				continue
			}
			d := sys.Box.MinImage(r3.Sub(sys.Positions[j], sys.Positions[i]))
			for _, n := range sys.Box.ImagesWithin(d, cube.CircumsphereDiameter()) {
				r := r3.Add(d, sys.Box.Shift(n))
				if shape.Overlap(cube, cube, r, sys.Orientations[i], sys.Orientations[j], tol) {
					want = true
					break
				}
			}
		}
		assert.Equal(t, want, o.Overlaps(0, sys.Pose(i), i), "particle %d", i)
	}
	assert.Positive(t, o.Checks())
}
