package shape

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// The helpers below measure a placed shape against simple geometric
// references. Positions are relative to the particle center and q is the
// particle orientation; all results include the sweep radius.

// eachConvex calls fn for every convex constituent with its space-frame
// orientation and center offset.
func eachConvex(s Shape, q quat.Number, offset r3.Vec, fn func(c convex, q quat.Number, offset r3.Vec)) {
	if u, ok := s.(*Union); ok {
		for _, m := range u.members {
			eachConvex(m.Shape, geom.Compose(q, m.Orientation), r3.Add(offset, geom.Rotate(q, m.Position)), fn)
		}
		return
	}
	fn(s.(convex), q, offset)
}

// Extent returns max over the shape of y.dir, the support value along a
// unit direction.
func Extent(s Shape, q quat.Number, dir r3.Vec) float64 {
	best := math.Inf(-1)
	eachConvex(s, q, r3.Vec{}, func(c convex, q quat.Number, off r3.Vec) {
		p := r3.Add(off, geom.Rotate(q, c.support(geom.RotateInverse(q, dir))))
		best = math.Max(best, r3.Dot(p, dir)+c.sweep())
	})
	return best
}

// FarthestDistance returns the largest distance from point to the shape.
func FarthestDistance(s Shape, q quat.Number, point r3.Vec) float64 {
	best := 0.0
	eachConvex(s, q, r3.Vec{}, func(c convex, q quat.Number, off r3.Vec) {
		for _, v := range c.vertices() {
			p := r3.Add(off, geom.Rotate(q, v))
			best = math.Max(best, r3.Norm(r3.Sub(p, point))+c.sweep())
		}
	})
	return best
}

// NearestDistance returns the distance from point to the shape, or zero when
// the point lies inside it.
func NearestDistance(s Shape, q quat.Number, point r3.Vec) float64 {
	return projectedNearest(s, q, point, func(v r3.Vec) r3.Vec { return v })
}

// FarthestFromAxis returns the largest distance from the line through point
// along the unit vector axis to the shape.
func FarthestFromAxis(s Shape, q quat.Number, point, axis r3.Vec) float64 {
	perp := perpendicular(axis)
	best := 0.0
	eachConvex(s, q, r3.Vec{}, func(c convex, q quat.Number, off r3.Vec) {
		for _, v := range c.vertices() {
			p := r3.Add(off, geom.Rotate(q, v))
			best = math.Max(best, r3.Norm(perp(r3.Sub(p, point)))+c.sweep())
		}
	})
	return best
}

// NearestFromAxis returns the distance from the line through point along
// the unit vector axis to the shape, zero when the line pierces it.
func NearestFromAxis(s Shape, q quat.Number, point, axis r3.Vec) float64 {
	return projectedNearest(s, q, point, perpendicular(axis))
}

func perpendicular(axis r3.Vec) func(r3.Vec) r3.Vec {
	return func(v r3.Vec) r3.Vec { return r3.Sub(v, r3.Scale(r3.Dot(v, axis), axis)) }
}

// projectedNearest runs GJK on the image of each constituent under the
// linear projection proj, measured from proj(point). proj must be
// symmetric so that support(proj d) projects to the support of the image.
func projectedNearest(s Shape, q quat.Number, point r3.Vec, proj func(r3.Vec) r3.Vec) float64 {
	best := math.Inf(1)
	eachConvex(s, q, r3.Vec{}, func(c convex, q quat.Number, off r3.Vec) {
		origin := proj(r3.Sub(off, point))
		sup := func(d r3.Vec) r3.Vec {
			pd := proj(d)
			return r3.Add(origin, proj(geom.Rotate(q, c.support(geom.RotateInverse(q, pd)))))
		}
		d := gjkDistance(sup, r3.Scale(-1, origin), c.CircumsphereDiameter()) - c.sweep()
		best = math.Min(best, d)
	})
	return math.Max(best, 0)
}
