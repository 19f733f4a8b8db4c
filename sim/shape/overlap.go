package shape

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// DefaultEpsilon is the default tie-break tolerance, in length units.
const DefaultEpsilon = 1e-9

// nearBandFactor widens Epsilon into the band reported as near-tolerance.
const nearBandFactor = 10

// Tolerance decides overlaps from signed separations. A separation at or
// below Epsilon counts as an overlap.
type Tolerance struct {
	Epsilon float64
}

// DefaultTolerance returns Tolerance{DefaultEpsilon}.
func DefaultTolerance() Tolerance {
	return Tolerance{Epsilon: DefaultEpsilon}
}

// Overlaps applies the tie policy to a separation.
func (t Tolerance) Overlaps(separation float64) bool {
	return separation <= t.Epsilon
}

// Near reports whether a separation is close enough to the threshold that
// round-off could have flipped the decision.
func (t Tolerance) Near(separation float64) bool {
	return math.Abs(separation-t.Epsilon) <= nearBandFactor*math.Max(t.Epsilon, 1e-15)
}

// Check tests shape a at the origin with orientation qa against shape b at r
// with orientation qb. near reports a decision inside the tolerance band.
func Check(a, b Shape, r r3.Vec, qa, qb quat.Number, tol Tolerance) (overlap, near bool) {
	if r3.Norm(r) > (a.CircumsphereDiameter()+b.CircumsphereDiameter())/2+tol.Epsilon {
		return false, false
	}
	if ua, ok := a.(*Union); ok {
		return checkUnion(ua, b, r, qa, qb, tol)
	}
	if ub, ok := b.(*Union); ok {
		return checkUnion(ub, a, r3.Scale(-1, r), qb, qa, tol)
	}
	sep := convexSeparation(a.(convex), b.(convex), r, qa, qb)
	return tol.Overlaps(sep), tol.Near(sep)
}

// Overlap reports whether the two placed shapes overlap.
func Overlap(a, b Shape, r r3.Vec, qa, qb quat.Number, tol Tolerance) bool {
	o, _ := Check(a, b, r, qa, qb, tol)
	return o
}

func checkUnion(u *Union, other Shape, r r3.Vec, qu, qo quat.Number, tol Tolerance) (bool, bool) {
	near := false
	for _, m := range u.members {
		pos := geom.Rotate(qu, m.Position)
		q := geom.Compose(qu, m.Orientation)
		o, n := Check(m.Shape, other, r3.Sub(r, pos), q, qo, tol)
		near = near || n
		if o {
			return true, near
		}
	}
	return false, near
}

// Separation returns the signed gap between the swept shapes: positive when
// apart, zero at contact, and negative when they interpenetrate. A negative
// value bounds the penetration depth from below; only its sign and its
// distance from the tie band are meaningful. For unions it is the minimum
// over member pairs.
func Separation(a, b Shape, r r3.Vec, qa, qb quat.Number) float64 {
	if ua, ok := a.(*Union); ok {
		best := math.Inf(1)
		for _, m := range ua.members {
			pos := geom.Rotate(qa, m.Position)
			s := Separation(m.Shape, b, r3.Sub(r, pos), geom.Compose(qa, m.Orientation), qb)
			best = math.Min(best, s)
		}
		return best
	}
	if _, ok := b.(*Union); ok {
		return Separation(b, a, r3.Scale(-1, r), qb, qa)
	}
	return convexSeparation(a.(convex), b.(convex), r, qa, qb)
}

// MemberPair names overlapping constituents; a non-union shape is member 0.
type MemberPair struct {
	A, B int
}

// OverlappingMembers enumerates every overlapping member pair. It is for
// diagnostics; acceptance decisions use Check, which exits early.
func OverlappingMembers(a, b Shape, r r3.Vec, qa, qb quat.Number, tol Tolerance) []MemberPair {
	var out []MemberPair
	ma, pa := placedMembers(a, r3.Vec{}, qa)
	mb, pb := placedMembers(b, r, qb)
	for i := range ma {
		for j := range mb {
			if Overlap(ma[i].Shape, mb[j].Shape, r3.Sub(pb[j], pa[i]), ma[i].Orientation, mb[j].Orientation, tol) {
				out = append(out, MemberPair{A: i, B: j})
			}
		}
	}
	return out
}

// placedMembers returns members with space-frame orientations and positions.
func placedMembers(s Shape, origin r3.Vec, q quat.Number) ([]Member, []r3.Vec) {
	u, ok := s.(*Union)
	if !ok {
		return []Member{{Shape: s, Orientation: q}}, []r3.Vec{origin}
	}
	ms := make([]Member, len(u.members))
	ps := make([]r3.Vec, len(u.members))
	for i, m := range u.members {
		ms[i] = Member{Shape: m.Shape, Orientation: geom.Compose(q, m.Orientation)}
		ps[i] = r3.Add(origin, geom.Rotate(q, m.Position))
	}
	return ms, ps
}

func convexSeparation(a, b convex, r r3.Vec, qa, qb quat.Number) float64 {
	sweep := a.sweep() + b.sweep()
	_, sa := a.(*Sphere)
	_, sb := b.(*Sphere)
	if sa && sb {
		return r3.Norm(r) - sweep
	}
	// support of the Minkowski difference A - B, with B displaced by r
	sup := func(d r3.Vec) r3.Vec {
		pa := geom.Rotate(qa, a.support(geom.RotateInverse(qa, d)))
		pb := r3.Add(r, geom.Rotate(qb, b.support(geom.RotateInverse(qb, r3.Scale(-1, d)))))
		return r3.Sub(pa, pb)
	}
	scale := math.Max(a.CircumsphereDiameter(), b.CircumsphereDiameter())
	return gjkDistance(sup, r3.Scale(-1, r), scale) - sweep
}
