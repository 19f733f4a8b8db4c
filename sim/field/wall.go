package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// WallKind names a wall geometry.
type WallKind string

const (
	WallPlane    WallKind = "plane"
	WallSphere   WallKind = "sphere"
	WallCylinder WallKind = "cylinder"
)

// Wall confines particles against a plane, sphere or cylinder.
//
// A plane keeps particles on the side its Normal points to. Sphere and
// cylinder walls keep particles inside when Inside is set and outside
// otherwise. With K == 0 the wall is hard: any penetration makes the pose
// incompatible. With K > 0 the wall is soft and penetration depth h costs
// K/2 h^2. Extents are exact for every shape variant.
type Wall struct {
	stats
	Kind   WallKind
	Origin r3.Vec // point on the plane, or center of the sphere or cylinder axis
	Normal r3.Vec // plane normal or cylinder axis, unit length
	Radius float64
	Inside bool
	K      float64
}

// Validate checks the wall parameters.
func (w *Wall) Validate() error {
	switch w.Kind {
	case WallPlane, WallCylinder:
		if math.Abs(r3.Norm(w.Normal)-1) > 1e-9 {
			return fmt.Errorf("%s wall needs a unit normal, got length %f", w.Kind, r3.Norm(w.Normal))
		}
	case WallSphere:
	default:
		return fmt.Errorf("unknown wall kind %q", w.Kind)
	}
	if w.Kind != WallPlane && !(w.Radius > 0) {
		return fmt.Errorf("%s wall radius must be positive, got %f", w.Kind, w.Radius)
	}
	if w.K < 0 || math.IsNaN(w.K) {
		return fmt.Errorf("wall stiffness must be non-negative, got %f", w.K)
	}
	return nil
}

// Penetration returns how far p's shape crosses the wall; zero or negative
// means no contact.
func (w *Wall) Penetration(p Particle) float64 {
	x, q := p.Pose.Position, p.Pose.Orientation
	rel := r3.Sub(w.Origin, x)
	switch w.Kind {
	case WallPlane:
		lowest := r3.Dot(w.Normal, x) - shape.Extent(p.Shape, q, r3.Scale(-1, w.Normal))
		return r3.Dot(w.Normal, w.Origin) - lowest
	case WallSphere:
		if w.Inside {
			return shape.FarthestDistance(p.Shape, q, rel) - w.Radius
		}
		return w.Radius - shape.NearestDistance(p.Shape, q, rel)
	case WallCylinder:
		if w.Inside {
			return shape.FarthestFromAxis(p.Shape, q, rel, w.Normal) - w.Radius
		}
		return w.Radius - shape.NearestFromAxis(p.Shape, q, rel, w.Normal)
	}
	return 0
}

func (w *Wall) Energy(_ geom.Box, p Particle) float64 {
	w.count()
	if w.K == 0 {
		return 0
	}
	h := w.Penetration(p)
	if h <= 0 {
		return 0
	}
	return w.K / 2 * h * h
}

func (w *Wall) EnergyDelta(box geom.Box, p Particle, trial geom.Pose) float64 {
	if w.K == 0 {
		return 0
	}
	return delta(w, box, p, trial)
}

func (w *Wall) IsCompatible(_ geom.Box, p Particle) bool {
	w.count()
	if w.K > 0 {
		return true
	}
	return w.Penetration(p) <= 0
}
