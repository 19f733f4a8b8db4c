package shape

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

var id = quat.Number{Real: 1}

func mustSphere(t *testing.T, d float64) *Sphere {
	t.Helper()
	s, err := NewSphere(d, false)
	require.NoError(t, err)
	return s
}

func mustCube(t *testing.T) *ConvexPolyhedron {
	t.Helper()
	c, err := NewConvexPolyhedron(unitCubeVerts(), 0)
	require.NoError(t, err)
	return c
}

func TestOverlap_Discs(t *testing.T) {
	// BDD: two unit discs overlap only when their centers are closer than 1
	disc := mustSphere(t, 1)
	tol := DefaultTolerance()
	tests := []struct {
		name string
		r    r3.Vec
		want bool
	}{
		{"far apart", r3.Vec{X: 1, Y: 2}, false},
		{"interpenetrating", r3.Vec{X: 0.9}, true},
		{"exactly touching counts", r3.Vec{X: 1}, true},
		{"just apart", r3.Vec{X: 1 + 1e-6}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlap(disc, disc, tt.r, id, id, tol))
		})
	}
}

func TestCheck_NearReportsTies(t *testing.T) {
	disc := mustSphere(t, 1)
	o, near := Check(disc, disc, r3.Vec{X: 1}, id, id, DefaultTolerance())
	assert.True(t, o)
	assert.True(t, near)

	o, near = Check(disc, disc, r3.Vec{X: 0.5}, id, id, DefaultTolerance())
	assert.True(t, o)
	assert.False(t, near)
}

func TestCheck_DeepOverlapIsNotNear(t *testing.T) {
	// BDD: interpenetrating polytopes are clear overlaps, touching ones are ties
	sq, err := NewConvexPolygon(unitSquare())
	require.NoError(t, err)
	cube := mustCube(t)
	tol := DefaultTolerance()
	tests := []struct {
		name     string
		a, b     Shape
		r        r3.Vec
		wantNear bool
	}{
		{"squares nearly coincident", sq, sq, r3.Vec{X: 0.1}, false},
		{"squares half overlapping", sq, sq, r3.Vec{X: 0.5, Y: 0.3}, false},
		{"cubes nearly coincident", cube, cube, r3.Vec{X: 0.13, Y: 0.21, Z: 0.07}, false},
		{"squares edge to edge", sq, sq, r3.Vec{X: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, near := Check(tt.a, tt.b, tt.r, id, id, tol)
			assert.True(t, o)
			assert.Equal(t, tt.wantNear, near)
			if !tt.wantNear {
				assert.Less(t, Separation(tt.a, tt.b, tt.r, id, id), 0.0)
			}
		})
	}
}

func TestTolerance(t *testing.T) {
	tol := DefaultTolerance()
	assert.True(t, tol.Overlaps(0))
	assert.True(t, tol.Overlaps(DefaultEpsilon))
	assert.False(t, tol.Overlaps(2*DefaultEpsilon+1e-9))
	assert.True(t, tol.Near(DefaultEpsilon))
	assert.False(t, tol.Near(1))

	loose := Tolerance{Epsilon: 0.01}
	assert.True(t, loose.Overlaps(0.005))
}

func TestOverlap_Squares(t *testing.T) {
	sq, err := NewConvexPolygon(unitSquare())
	require.NoError(t, err)
	tol := DefaultTolerance()
	turned := geom.AxisAngle(r3.Vec{Z: 1}, math.Pi/4)

	assert.False(t, Overlap(sq, sq, r3.Vec{X: 1.01}, id, id, tol))
	assert.True(t, Overlap(sq, sq, r3.Vec{X: 0.99}, id, id, tol))
	assert.True(t, Overlap(sq, sq, r3.Vec{X: 0.7, Y: 0.7}, id, id, tol))
	assert.False(t, Overlap(sq, sq, r3.Vec{X: 1.01, Y: 1.01}, id, id, tol))

	// a square turned by 45 degrees reaches sqrt(2)/2 along x
	assert.True(t, Overlap(sq, sq, r3.Vec{X: 1.2}, id, turned, tol))
	assert.False(t, Overlap(sq, sq, r3.Vec{X: 1.22}, id, turned, tol))

	assert.InDelta(t, 0.5, Separation(sq, sq, r3.Vec{X: 1.5}, id, id), 1e-9)
}

func TestOverlap_Spheropolygons(t *testing.T) {
	stadium, err := NewSpheropolygon([]r2.Vec{{X: -0.5}, {X: 0.5}}, 0.25)
	require.NoError(t, err)
	tol := DefaultTolerance()

	assert.True(t, Overlap(stadium, stadium, r3.Vec{Y: 0.49}, id, id, tol))
	assert.False(t, Overlap(stadium, stadium, r3.Vec{Y: 0.51}, id, id, tol))
	assert.InDelta(t, 0.1, Separation(stadium, stadium, r3.Vec{Y: 0.6}, id, id), 1e-9)

	// end caps are round: diagonal approach measures from the segment ends
	r := r3.Vec{X: 1 + 0.3, Y: 0.4}
	assert.InDelta(t, 0.5-0.5, Separation(stadium, stadium, r, id, id), 1e-9)

	disc, err := NewSpheropolygon([]r2.Vec{{}}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, Separation(disc, mustSphere(t, 1), r3.Vec{X: 1.1}, id, id), 1e-9)
}

func TestOverlap_Cubes(t *testing.T) {
	cube := mustCube(t)
	tol := DefaultTolerance()
	turned := geom.AxisAngle(r3.Vec{Z: 1}, math.Pi/4)

	assert.False(t, Overlap(cube, cube, r3.Vec{X: 1.001}, id, id, tol))
	assert.True(t, Overlap(cube, cube, r3.Vec{X: 0.999}, id, id, tol))
	assert.True(t, Overlap(cube, cube, r3.Vec{X: 1.2}, id, turned, tol))
	assert.False(t, Overlap(cube, cube, r3.Vec{X: 1.22}, id, turned, tol))
	assert.InDelta(t, 0.25, Separation(cube, cube, r3.Vec{Z: 1.25}, id, id), 1e-9)
}

func TestOverlap_SphereAgainstCube(t *testing.T) {
	cube := mustCube(t)
	ball := mustSphere(t, 1)
	tol := DefaultTolerance()

	assert.True(t, Overlap(cube, ball, r3.Vec{X: 1}, id, id, tol))
	assert.False(t, Overlap(cube, ball, r3.Vec{X: 1.01}, id, id, tol))
	// bounding spheres intersect, but the corner is farther than the radius
	assert.False(t, Overlap(cube, ball, r3.Vec{X: 0.9, Y: 0.9, Z: 0.9}, id, id, tol))
	assert.InDelta(t, 0.4*math.Sqrt(3)-0.5, Separation(ball, cube, r3.Vec{X: -0.9, Y: -0.9, Z: -0.9}, id, id), 1e-9)
}

func dimer(t *testing.T) *Union {
	t.Helper()
	ball := mustSphere(t, 1)
	u, err := NewUnion([]Member{
		{Shape: ball, Position: r3.Vec{X: -0.5}, Orientation: id},
		{Shape: ball, Position: r3.Vec{X: 0.5}, Orientation: id},
	})
	require.NoError(t, err)
	return u
}

func TestOverlap_Union(t *testing.T) {
	u := dimer(t)
	ball := mustSphere(t, 1)
	tol := DefaultTolerance()
	assert.InDelta(t, 2.0, u.CircumsphereDiameter(), 1e-12)

	assert.False(t, Overlap(u, ball, r3.Vec{Y: 0.9}, id, id, tol))
	assert.True(t, Overlap(u, ball, r3.Vec{Y: 0.8}, id, id, tol))
	assert.False(t, Overlap(ball, u, r3.Vec{Y: -0.9}, id, id, tol))
	assert.True(t, Overlap(ball, u, r3.Vec{Y: -0.8}, id, id, tol))

	quarter := geom.AxisAngle(r3.Vec{Z: 1}, math.Pi/2)
	assert.False(t, Overlap(u, ball, r3.Vec{Y: 1.6}, quarter, id, tol))
	assert.True(t, Overlap(u, ball, r3.Vec{Y: 1.4}, quarter, id, tol))
	assert.InDelta(t, math.Sqrt(0.25+0.81)-1, Separation(u, ball, r3.Vec{Y: 0.9}, id, id), 1e-9)
}

func TestOverlappingMembers(t *testing.T) {
	u := dimer(t)
	pairs := OverlappingMembers(u, u, r3.Vec{X: 1.9}, id, id, DefaultTolerance())
	assert.Equal(t, []MemberPair{{A: 1, B: 0}}, pairs)
	assert.Empty(t, OverlappingMembers(u, u, r3.Vec{X: 3.1}, id, id, DefaultTolerance()))
}

func TestOverlap_Symmetric(t *testing.T) {
	// BDD: swapping the pair and negating the displacement never changes the answer
	cube := mustCube(t)
	stick, err := NewConvexPolyhedron([]r3.Vec{{Z: -0.6}, {Z: 0.6}}, 0.2)
	require.NoError(t, err)
	u := dimer(t)
	shapes := []Shape{cube, stick, u, mustSphere(t, 0.8)}
	tol := DefaultTolerance()
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 400; i++ {
		a := shapes[rng.Intn(len(shapes))]
		b := shapes[rng.Intn(len(shapes))]
		qa, qb := geom.RandomOrientation(rng, 3), geom.RandomOrientation(rng, 3)
		r := geom.RandomInBall(rng, 3, 2.5)
		ab := Overlap(a, b, r, qa, qb, tol)
		ba := Overlap(b, a, r3.Scale(-1, r), qb, qa, tol)
		require.Equal(t, ab, ba, "trial %d", i)
		sep := Separation(a, b, r, qa, qb)
		assert.Equal(t, ab, tol.Overlaps(sep), "trial %d separation %g", i, sep)
	}
}

func TestOverlap_AgreesWithVertexSampling(t *testing.T) {
	// when a cube vertex lies inside the other cube they must overlap
	cube := mustCube(t)
	tol := DefaultTolerance()
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 200; i++ {
		qa, qb := geom.RandomOrientation(rng, 3), geom.RandomOrientation(rng, 3)
		r := geom.RandomInBall(rng, 3, 1.8)
		inside := false
		for _, v := range unitCubeVerts() {
			p := geom.RotateInverse(qa, r3.Add(r, geom.Rotate(qb, v)))
			if math.Abs(p.X) < 0.5 && math.Abs(p.Y) < 0.5 && math.Abs(p.Z) < 0.5 {
				inside = true
			}
		}
		if inside {
			assert.True(t, Overlap(cube, cube, r, qa, qb, tol), "trial %d", i)
		}
	}
}
