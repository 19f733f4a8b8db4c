package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// sphereGas places n unit spheres on a lattice in a cubic box of edge l.
func sphereGas(t *testing.T, n int, l float64) *System {
	t.Helper()
	sph, err := shape.NewSphere(1, false)
	require.NoError(t, err)
	sys := NewSystem(geom.NewBox(l, l, l), NewShapeTable(sph))
	for _, x := range geom.Lattice(sys.Box, n) {
		sys.Add(0, geom.Pose{Position: x, Orientation: geom.Identity()})
	}
	return sys
}

// squareGas places n unit squares on a lattice in a square 2D box of edge l.
func squareGas(t *testing.T, n int, l float64) *System {
	t.Helper()
	sq, err := shape.NewConvexPolygon([]r2.Vec{{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5}})
	require.NoError(t, err)
	sys := NewSystem(geom.NewBox2D(l, l), NewShapeTable(sq))
	for _, x := range geom.Lattice(sys.Box, n) {
		sys.Add(0, geom.Pose{Position: x, Orientation: geom.Identity()})
	}
	return sys
}

// discPair returns two unit discs at separation sep along x.
func discPair(t *testing.T, sep float64) *System {
	t.Helper()
	disc, err := shape.NewSphere(1, false)
	require.NoError(t, err)
	sys := NewSystem(geom.NewBox2D(10, 10), NewShapeTable(disc))
	sys.Add(0, geom.Pose{Position: r3.Vec{}, Orientation: geom.Identity()})
	sys.Add(0, geom.Pose{Position: r3.Vec{X: sep}, Orientation: geom.Identity()})
	return sys
}

// newTestOracle returns an oracle with a built cell list over sys.
func newTestOracle(t *testing.T, sys *System) *Oracle {
	t.Helper()
	o := NewOracle(sys, index.NewCellList(sys.Shapes.MaxDiameter(), 0.3), nil, shape.DefaultTolerance())
	require.NoError(t, o.Refresh())
	return o
}
