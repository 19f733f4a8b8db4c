package shape

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	gjkMaxIterations = 64
	gjkRelTol        = 1e-12
)

// supportFunc returns the point of a convex set farthest along d.
type supportFunc func(d r3.Vec) r3.Vec

// simplex holds up to four points of the Minkowski difference.
type simplex struct {
	pts [4]r3.Vec
	n   int
}

func (s *simplex) contains(w r3.Vec) bool {
	for i := 0; i < s.n; i++ {
		if s.pts[i] == w {
			return true
		}
	}
	return false
}

func (s *simplex) keep(idx ...int) {
	var out [4]r3.Vec
	for k, i := range idx {
		out[k] = s.pts[i]
	}
	s.pts = out
	s.n = len(idx)
}

// gjkDistance returns the Euclidean distance from the origin to the convex
// set described by sup. When the set contains the origin the result is
// minus a lower bound on the penetration depth, taken from the simplex that
// encloses the origin; it is zero for contacts on the boundary. scale is a
// characteristic length used for the absolute termination tolerance.
func gjkDistance(sup supportFunc, start r3.Vec, scale float64) float64 {
	absTol := 1e-14 * scale * scale
	if r3.Norm2(start) == 0 {
		start = r3.Vec{X: 1}
	}
	var s simplex
	v := sup(start)
	for iter := 0; iter < gjkMaxIterations; iter++ {
		vv := r3.Norm2(v)
		if vv <= absTol {
			return -s.depth()
		}
		w := sup(r3.Scale(-1, v))
		if vv-r3.Dot(v, w) <= gjkRelTol*vv || s.contains(w) {
			return math.Sqrt(vv)
		}
		s.pts[s.n] = w
		s.n++
		v = closestOnSimplex(&s)
		if s.n == 4 {
			return -s.depth()
		}
	}
	return r3.Norm(v)
}

// depth returns the distance from an enclosed origin to the boundary of the
// simplex hull. A triangle only bounds the depth of planar sets (z = 0);
// lower-dimensional simplices give zero.
func (s *simplex) depth() float64 {
	switch s.n {
	case 4:
		faces := [4][3]int{{0, 1, 2}, {0, 2, 3}, {0, 3, 1}, {1, 3, 2}}
		best := math.Inf(1)
		for _, f := range faces {
			p0, p1, p2 := s.pts[f[0]], s.pts[f[1]], s.pts[f[2]]
			n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
			nn := r3.Norm(n)
			if nn == 0 {
				return 0
			}
			best = math.Min(best, math.Abs(r3.Dot(n, p0))/nn)
		}
		return best
	case 3:
		for i := 0; i < 3; i++ {
			if s.pts[i].Z != 0 {
				return 0
			}
		}
		best := math.Inf(1)
		for i := 0; i < 3; i++ {
			a, b := s.pts[i], s.pts[(i+1)%3]
			e := r3.Sub(b, a)
			el := r3.Norm(e)
			if el == 0 {
				return 0
			}
			best = math.Min(best, math.Abs(e.X*a.Y-e.Y*a.X)/el)
		}
		return best
	}
	return 0
}

// closestOnSimplex returns the point of the simplex hull closest to the
// origin and reduces the simplex to the vertices supporting that point.
func closestOnSimplex(s *simplex) r3.Vec {
	switch s.n {
	case 1:
		return s.pts[0]
	case 2:
		return closestOnSegment(s, 0, 1)
	case 3:
		return closestOnTriangle(s, 0, 1, 2)
	default:
		return closestOnTetrahedron(s)
	}
}

func closestOnSegment(s *simplex, ia, ib int) r3.Vec {
	a, b := s.pts[ia], s.pts[ib]
	ab := r3.Sub(b, a)
	denom := r3.Norm2(ab)
	if denom == 0 {
		s.keep(ia)
		return a
	}
	t := -r3.Dot(a, ab) / denom
	switch {
	case t <= 0:
		s.keep(ia)
		return a
	case t >= 1:
		s.keep(ib)
		return b
	}
	s.keep(ia, ib)
	return r3.Add(a, r3.Scale(t, ab))
}

// closestOnTriangle follows the Voronoi region walk of Ericson,
// Real-Time Collision Detection, section 5.1.5.
func closestOnTriangle(s *simplex, ia, ib, ic int) r3.Vec {
	a, b, c := s.pts[ia], s.pts[ib], s.pts[ic]
	ab, ac := r3.Sub(b, a), r3.Sub(c, a)
	ap := r3.Scale(-1, a)
	d1, d2 := r3.Dot(ab, ap), r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		s.keep(ia)
		return a
	}
	bp := r3.Scale(-1, b)
	d3, d4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		s.keep(ib)
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		s.keep(ia, ib)
		return r3.Add(a, r3.Scale(v, ab))
	}
	cp := r3.Scale(-1, c)
	d5, d6 := r3.Dot(ab, cp), r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		s.keep(ic)
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		s.keep(ia, ic)
		return r3.Add(a, r3.Scale(w, ac))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		s.keep(ib, ic)
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}
	sum := va + vb + vc
	if sum == 0 {
		// collinear: fall back to the best edge
		return closestOnDegenerate(s, [][2]int{{ia, ib}, {ia, ic}, {ib, ic}})
	}
	v, w := vb/sum, vc/sum
	s.keep(ia, ib, ic)
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}

func closestOnDegenerate(s *simplex, edges [][2]int) r3.Vec {
	orig := *s
	bestDist := math.Inf(1)
	var best r3.Vec
	var bestSimplex simplex
	for _, e := range edges {
		trial := orig
		p := closestOnSegment(&trial, e[0], e[1])
		if d := r3.Norm2(p); d < bestDist {
			bestDist, best, bestSimplex = d, p, trial
		}
	}
	*s = bestSimplex
	return best
}

// closestOnTetrahedron tests each face the origin lies outside of. An origin
// inside all four faces is contained and the simplex stays full.
func closestOnTetrahedron(s *simplex) r3.Vec {
	orig := *s
	faces := [4][4]int{{0, 1, 2, 3}, {0, 2, 3, 1}, {0, 3, 1, 2}, {1, 3, 2, 0}}
	a, b, c, d := orig.pts[0], orig.pts[1], orig.pts[2], orig.pts[3]
	vol := r3.Dot(r3.Sub(d, a), r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	scale := math.Max(math.Max(r3.Norm2(r3.Sub(b, a)), r3.Norm2(r3.Sub(c, a))), r3.Norm2(r3.Sub(d, a)))
	degenerate := math.Abs(vol) <= 1e-12*math.Pow(scale, 1.5)

	bestDist := math.Inf(1)
	var best r3.Vec
	var bestSimplex simplex
	inside := true
	for _, f := range faces {
		p0, p1, p2, opp := orig.pts[f[0]], orig.pts[f[1]], orig.pts[f[2]], orig.pts[f[3]]
		n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
		signOrigin := r3.Dot(r3.Scale(-1, p0), n)
		signOpp := r3.Dot(r3.Sub(opp, p0), n)
		if !degenerate && signOrigin*signOpp >= 0 {
			continue
		}
		inside = false
		trial := orig
		p := closestOnTriangle(&trial, f[0], f[1], f[2])
		if dist := r3.Norm2(p); dist < bestDist {
			bestDist, best, bestSimplex = dist, p, trial
		}
	}
	if inside {
		return r3.Vec{}
	}
	*s = bestSimplex
	return best
}
