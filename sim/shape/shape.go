// Package shape implements the hard-particle shape capability: a closed set
// of geometric variants with exact overlap tests.
//
// Convex variants (Sphere, ConvexPolygon, Spheropolygon, ConvexPolyhedron)
// are described by a core support function plus a sweep radius; the swept
// shape is the core inflated by that radius. Union composes convex members
// rigidly. The set is sealed: only types in this package implement Shape.
package shape

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// ErrInvalidShape reports degenerate or malformed shape parameters.
var ErrInvalidShape = errors.New("invalid shape")

// Kind names a shape variant.
type Kind string

const (
	KindSphere           Kind = "sphere"
	KindConvexPolygon    Kind = "convex_polygon"
	KindSpheropolygon    Kind = "spheropolygon"
	KindConvexPolyhedron Kind = "convex_polyhedron"
	KindUnion            Kind = "union"
)

// Shape is a hard-particle geometry in its body frame.
type Shape interface {
	Kind() Kind
	// CircumsphereDiameter bounds the shape about its body origin.
	CircumsphereDiameter() float64
	// Dimensions is 2 for planar-only shapes, 3 for solids, 0 if either works.
	Dimensions() int
	// Orientable is false when rotations cannot change the shape's extent.
	Orientable() bool
	sealed()
}

// convex is implemented by every non-composite variant.
type convex interface {
	Shape
	// support returns the core point farthest along d (body frame).
	support(d r3.Vec) r3.Vec
	sweep() float64
	vertices() []r3.Vec
}

// Sphere is a disk in 2D or a ball in 3D.
type Sphere struct {
	diameter   float64
	orientable bool
}

// NewSphere validates and returns a sphere. Orientable spheres carry an
// orientation that is proposed and tracked even though it cannot cause overlaps.
func NewSphere(diameter float64, orientable bool) (*Sphere, error) {
	if !finitePositive(diameter) {
		return nil, fmt.Errorf("%w: sphere diameter must be positive and finite, got %f", ErrInvalidShape, diameter)
	}
	return &Sphere{diameter: diameter, orientable: orientable}, nil
}

func (s *Sphere) Kind() Kind                    { return KindSphere }
func (s *Sphere) CircumsphereDiameter() float64 { return s.diameter }
func (s *Sphere) Dimensions() int               { return 0 }
func (s *Sphere) Orientable() bool              { return s.orientable }
func (s *Sphere) Diameter() float64             { return s.diameter }
func (s *Sphere) sealed()                       {}
func (s *Sphere) support(r3.Vec) r3.Vec         { return r3.Vec{} }
func (s *Sphere) sweep() float64                { return s.diameter / 2 }
func (s *Sphere) vertices() []r3.Vec            { return []r3.Vec{{}} }

// polygonCore holds the validated vertex data shared by the planar variants.
type polygonCore struct {
	verts  []r3.Vec
	radius float64
	area   float64
	diam   float64
}

func newPolygonCore(vs []r2.Vec, radius float64, minVerts int) (polygonCore, error) {
	if len(vs) < minVerts {
		return polygonCore{}, fmt.Errorf("%w: need at least %d vertices, got %d", ErrInvalidShape, minVerts, len(vs))
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return polygonCore{}, fmt.Errorf("%w: sweep radius must be non-negative and finite, got %f", ErrInvalidShape, radius)
	}
	if len(vs) < 3 && radius == 0 {
		return polygonCore{}, fmt.Errorf("%w: %d-vertex polygon needs a positive sweep radius", ErrInvalidShape, len(vs))
	}
	verts := make([]r3.Vec, len(vs))
	for i, v := range vs {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
			return polygonCore{}, fmt.Errorf("%w: vertex %d is not finite", ErrInvalidShape, i)
		}
		verts[i] = r3.Vec{X: v.X, Y: v.Y}
	}
	if len(verts) >= 3 {
		if err := checkConvexCCW(verts); err != nil {
			return polygonCore{}, err
		}
	}
	core := polygonCore{verts: verts, radius: radius, area: shoelace(verts)}
	core.diam = 2 * (maxNorm(verts) + radius)
	return core, nil
}

// checkConvexCCW rejects polygons that are not strictly convex with
// counterclockwise winding, including star polygons that turn more than once.
func checkConvexCCW(verts []r3.Vec) error {
	n := len(verts)
	if shoelace(verts) <= 0 {
		return fmt.Errorf("%w: polygon must have positive area with counterclockwise winding", ErrInvalidShape)
	}
	turning := 0.0
	for i := 0; i < n; i++ {
		a, b, c := verts[i], verts[(i+1)%n], verts[(i+2)%n]
		e1, e2 := r3.Sub(b, a), r3.Sub(c, b)
		if r3.Norm2(e1) == 0 {
			return fmt.Errorf("%w: repeated vertex %d", ErrInvalidShape, (i+1)%n)
		}
		cross := e1.X*e2.Y - e1.Y*e2.X
		if cross <= 0 {
			return fmt.Errorf("%w: polygon is not strictly convex at vertex %d", ErrInvalidShape, (i+1)%n)
		}
		turning += math.Atan2(cross, r3.Dot(e1, e2))
	}
	if math.Abs(turning-2*math.Pi) > 1e-6 {
		return fmt.Errorf("%w: polygon is self-intersecting", ErrInvalidShape)
	}
	return nil
}

func shoelace(verts []r3.Vec) float64 {
	if len(verts) < 3 {
		return 0
	}
	a := 0.0
	for i := range verts {
		p, q := verts[i], verts[(i+1)%len(verts)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func maxNorm(verts []r3.Vec) float64 {
	m := 0.0
	for _, v := range verts {
		m = math.Max(m, r3.Norm(v))
	}
	return m
}

func (c *polygonCore) support(d r3.Vec) r3.Vec { return supportOf(c.verts, d) }
func (c *polygonCore) vertices() []r3.Vec      { return c.verts }

func supportOf(verts []r3.Vec, d r3.Vec) r3.Vec {
	best, bestDot := verts[0], r3.Dot(verts[0], d)
	for _, v := range verts[1:] {
		if dot := r3.Dot(v, d); dot > bestDot {
			best, bestDot = v, dot
		}
	}
	return best
}

func copyVerts2(verts []r3.Vec) []r2.Vec {
	out := make([]r2.Vec, len(verts))
	for i, v := range verts {
		out[i] = r2.Vec{X: v.X, Y: v.Y}
	}
	return out
}

// ConvexPolygon is a strictly convex polygon in the xy plane.
type ConvexPolygon struct{ core polygonCore }

// NewConvexPolygon validates vertices given counterclockwise about the body origin.
func NewConvexPolygon(vertices []r2.Vec) (*ConvexPolygon, error) {
	core, err := newPolygonCore(vertices, 0, 3)
	if err != nil {
		return nil, err
	}
	return &ConvexPolygon{core: core}, nil
}

func (p *ConvexPolygon) Kind() Kind                    { return KindConvexPolygon }
func (p *ConvexPolygon) CircumsphereDiameter() float64 { return p.core.diam }
func (p *ConvexPolygon) Dimensions() int               { return 2 }
func (p *ConvexPolygon) Orientable() bool              { return true }
func (p *ConvexPolygon) Vertices() []r2.Vec            { return copyVerts2(p.core.verts) }
func (p *ConvexPolygon) Area() float64                 { return p.core.area }
func (p *ConvexPolygon) sealed()                       {}
func (p *ConvexPolygon) support(d r3.Vec) r3.Vec       { return p.core.support(d) }
func (p *ConvexPolygon) sweep() float64                { return 0 }
func (p *ConvexPolygon) vertices() []r3.Vec            { return p.core.verts }

// Spheropolygon is a convex polygon (or segment, or point) inflated by a
// sweep radius.
type Spheropolygon struct{ core polygonCore }

// NewSpheropolygon validates a swept polygon. One or two vertices are
// allowed when the sweep radius is positive.
func NewSpheropolygon(vertices []r2.Vec, sweepRadius float64) (*Spheropolygon, error) {
	core, err := newPolygonCore(vertices, sweepRadius, 1)
	if err != nil {
		return nil, err
	}
	return &Spheropolygon{core: core}, nil
}

func (p *Spheropolygon) Kind() Kind                    { return KindSpheropolygon }
func (p *Spheropolygon) CircumsphereDiameter() float64 { return p.core.diam }
func (p *Spheropolygon) Dimensions() int               { return 2 }
func (p *Spheropolygon) Orientable() bool              { return true }
func (p *Spheropolygon) Vertices() []r2.Vec            { return copyVerts2(p.core.verts) }
func (p *Spheropolygon) SweepRadius() float64          { return p.core.radius }
func (p *Spheropolygon) sealed()                       {}
func (p *Spheropolygon) support(d r3.Vec) r3.Vec       { return p.core.support(d) }
func (p *Spheropolygon) sweep() float64                { return p.core.radius }
func (p *Spheropolygon) vertices() []r3.Vec            { return p.core.verts }

// Area includes the rounded rim: core area + perimeter*r + pi*r^2.
func (p *Spheropolygon) Area() float64 {
	r := p.core.radius
	perimeter := 0.0
	n := len(p.core.verts)
	if n > 1 {
		for i := 0; i < n; i++ {
			perimeter += r3.Norm(r3.Sub(p.core.verts[(i+1)%n], p.core.verts[i]))
		}
	}
	return p.core.area + perimeter*r + math.Pi*r*r
}

// ConvexPolyhedron is the convex hull of its vertices, optionally swept
// (a spheropolyhedron).
type ConvexPolyhedron struct {
	verts  []r3.Vec
	radius float64
	diam   float64
}

// NewConvexPolyhedron validates a polyhedron. Without a sweep radius the
// vertices must span a solid (at least four non-coplanar points).
func NewConvexPolyhedron(vertices []r3.Vec, sweepRadius float64) (*ConvexPolyhedron, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("%w: polyhedron needs at least one vertex", ErrInvalidShape)
	}
	if math.IsNaN(sweepRadius) || math.IsInf(sweepRadius, 0) || sweepRadius < 0 {
		return nil, fmt.Errorf("%w: sweep radius must be non-negative and finite, got %f", ErrInvalidShape, sweepRadius)
	}
	verts := make([]r3.Vec, len(vertices))
	for i, v := range vertices {
		for _, c := range []float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("%w: vertex %d is not finite", ErrInvalidShape, i)
			}
		}
		verts[i] = v
	}
	if sweepRadius == 0 && !spansVolume(verts) {
		return nil, fmt.Errorf("%w: polyhedron vertices are coplanar", ErrInvalidShape)
	}
	return &ConvexPolyhedron{verts: verts, radius: sweepRadius, diam: 2 * (maxNorm(verts) + sweepRadius)}, nil
}

// spansVolume reports whether some four vertices form a tetrahedron of
// non-negligible volume.
func spansVolume(verts []r3.Vec) bool {
	if len(verts) < 4 {
		return false
	}
	scale := maxNorm(verts)
	if scale == 0 {
		return false
	}
	tol := 1e-12 * scale * scale * scale
	a := verts[0]
	for i := 1; i < len(verts); i++ {
		for j := i + 1; j < len(verts); j++ {
			n := r3.Cross(r3.Sub(verts[i], a), r3.Sub(verts[j], a))
			for k := j + 1; k < len(verts); k++ {
				if math.Abs(r3.Dot(n, r3.Sub(verts[k], a))) > tol {
					return true
				}
			}
		}
	}
	return false
}

func (p *ConvexPolyhedron) Kind() Kind                    { return KindConvexPolyhedron }
func (p *ConvexPolyhedron) CircumsphereDiameter() float64 { return p.diam }
func (p *ConvexPolyhedron) Dimensions() int               { return 3 }
func (p *ConvexPolyhedron) Orientable() bool              { return true }
func (p *ConvexPolyhedron) SweepRadius() float64          { return p.radius }
func (p *ConvexPolyhedron) sealed()                       {}
func (p *ConvexPolyhedron) support(d r3.Vec) r3.Vec       { return supportOf(p.verts, d) }
func (p *ConvexPolyhedron) sweep() float64                { return p.radius }
func (p *ConvexPolyhedron) vertices() []r3.Vec            { return p.verts }

// Vertices returns a copy of the vertex list.
func (p *ConvexPolyhedron) Vertices() []r3.Vec {
	return append([]r3.Vec(nil), p.verts...)
}

// Member is a convex constituent of a Union placed in the union's body frame.
type Member struct {
	Shape       Shape
	Position    r3.Vec
	Orientation quat.Number
}

// Union is a rigid composite of convex members.
type Union struct {
	members []Member
	diam    float64
	dims    int
}

// NewUnion validates members. Nested unions are rejected.
func NewUnion(members []Member) (*Union, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: union needs at least one member", ErrInvalidShape)
	}
	u := &Union{members: make([]Member, len(members))}
	for i, m := range members {
		if m.Shape == nil {
			return nil, fmt.Errorf("%w: union member %d has no shape", ErrInvalidShape, i)
		}
		if _, ok := m.Shape.(convex); !ok {
			return nil, fmt.Errorf("%w: union member %d must be convex, got %s", ErrInvalidShape, i, m.Shape.Kind())
		}
		if !geom.IsUnit(m.Orientation) {
			return nil, fmt.Errorf("%w: union member %d orientation is not a unit quaternion", ErrInvalidShape, i)
		}
		if d := m.Shape.Dimensions(); d != 0 {
			if u.dims != 0 && u.dims != d {
				return nil, fmt.Errorf("%w: union mixes 2D and 3D members", ErrInvalidShape)
			}
			u.dims = d
		}
		u.members[i] = m
		u.diam = math.Max(u.diam, 2*r3.Norm(m.Position)+m.Shape.CircumsphereDiameter())
	}
	return u, nil
}

func (u *Union) Kind() Kind                    { return KindUnion }
func (u *Union) CircumsphereDiameter() float64 { return u.diam }
func (u *Union) Dimensions() int               { return u.dims }
func (u *Union) Orientable() bool              { return true }
func (u *Union) sealed()                       {}

// Members returns a copy of the member list.
func (u *Union) Members() []Member {
	return append([]Member(nil), u.members...)
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
