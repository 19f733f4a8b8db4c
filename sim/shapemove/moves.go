package shapemove

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// Proposal is a trial shape for one type.
type Proposal struct {
	Shape shape.Shape
	// LogRatio is ln q(old|new) - ln q(new|old); zero for symmetric moves.
	LogRatio float64
	// Commit, when set, is called once the proposal is accepted.
	Commit func()
}

// Move generates trial shapes. An error wrapping shape.ErrInvalidShape
// rejects the trial; any other error aborts the update.
type Move interface {
	Propose(rng *rand.Rand, typ int, current shape.Shape) (Proposal, error)
}

// VertexMove displaces one random vertex of a polygon or polyhedron
// uniformly within a ball of radius Step. With NormalizeArea set, a 2D
// trial is rescaled to the current area.
type VertexMove struct {
	Step          float64
	NormalizeArea bool
}

func (m VertexMove) Propose(rng *rand.Rand, _ int, current shape.Shape) (Proposal, error) {
	switch s := current.(type) {
	case *shape.ConvexPolygon:
		vs := s.Vertices()
		k := rng.Intn(len(vs))
		d := geom.RandomInBall(rng, 2, m.Step)
		vs[k] = r2.Add(vs[k], r2.Vec{X: d.X, Y: d.Y})
		if m.NormalizeArea {
			vs = scaleToArea(vs, s.Area())
		}
		next, err := shape.NewConvexPolygon(vs)
		return Proposal{Shape: next}, err
	case *shape.Spheropolygon:
		vs := s.Vertices()
		k := rng.Intn(len(vs))
		d := geom.RandomInBall(rng, 2, m.Step)
		vs[k] = r2.Add(vs[k], r2.Vec{X: d.X, Y: d.Y})
		if m.NormalizeArea && len(vs) >= 3 {
			vs = scaleToArea(vs, polygonArea(s.Vertices()))
		}
		next, err := shape.NewSpheropolygon(vs, s.SweepRadius())
		return Proposal{Shape: next}, err
	case *shape.ConvexPolyhedron:
		vs := s.Vertices()
		k := rng.Intn(len(vs))
		vs[k] = r3.Add(vs[k], geom.RandomInBall(rng, 3, m.Step))
		next, err := shape.NewConvexPolyhedron(vs, s.SweepRadius())
		return Proposal{Shape: next}, err
	}
	return Proposal{}, fmt.Errorf("%w: vertex moves do not apply to %s", shape.ErrInvalidShape, current.Kind())
}

// ScaleMove stretches a shape along a random body axis by exp(u), u uniform
// in [-Step, Step], and compresses the other axes to keep its volume.
type ScaleMove struct {
	Step float64
}

func (m ScaleMove) Propose(rng *rand.Rand, _ int, current shape.Shape) (Proposal, error) {
	dims := current.Dimensions()
	if dims == 0 {
		return Proposal{}, fmt.Errorf("%w: scale moves do not apply to %s", shape.ErrInvalidShape, current.Kind())
	}
	axis := rng.Intn(dims)
	stretch := math.Exp((2*rng.Float64() - 1) * m.Step)
	other := math.Pow(stretch, -1/float64(dims-1))
	f := [3]float64{other, other, other}
	f[axis] = stretch
	scale := func(v r3.Vec) r3.Vec { return r3.Vec{X: v.X * f[0], Y: v.Y * f[1], Z: v.Z * f[2]} }

	switch s := current.(type) {
	case *shape.ConvexPolygon:
		next, err := shape.NewConvexPolygon(scale2(s.Vertices(), scale))
		return Proposal{Shape: next}, err
	case *shape.Spheropolygon:
		next, err := shape.NewSpheropolygon(scale2(s.Vertices(), scale), s.SweepRadius())
		return Proposal{Shape: next}, err
	case *shape.ConvexPolyhedron:
		vs := s.Vertices()
		for i := range vs {
			vs[i] = scale(vs[i])
		}
		next, err := shape.NewConvexPolyhedron(vs, s.SweepRadius())
		return Proposal{Shape: next}, err
	}
	return Proposal{}, fmt.Errorf("%w: scale moves do not apply to %s", shape.ErrInvalidShape, current.Kind())
}

// ScriptedMove perturbs a per-type parameter vector in [0,1] and maps it to
// a shape through Build. One random component moves by up to Step and is
// reflected back into range, which keeps the proposal symmetric.
type ScriptedMove struct {
	Step   float64
	Params map[int][]float64
	Build  func(typ int, params []float64) (shape.Shape, error)
}

func (m *ScriptedMove) Propose(rng *rand.Rand, typ int, _ shape.Shape) (Proposal, error) {
	cur, ok := m.Params[typ]
	if !ok || len(cur) == 0 {
		return Proposal{}, fmt.Errorf("scripted move has no parameters for type %d", typ)
	}
	trial := append([]float64(nil), cur...)
	k := rng.Intn(len(trial))
	trial[k] = reflectUnit(trial[k] + (2*rng.Float64()-1)*m.Step)
	next, err := m.Build(typ, trial)
	if err != nil {
		return Proposal{}, err
	}
	return Proposal{Shape: next, Commit: func() { m.Params[typ] = trial }}, nil
}

// reflectUnit folds x into [0,1] by mirroring at the bounds.
func reflectUnit(x float64) float64 {
	x = math.Mod(math.Abs(x), 2)
	if x > 1 {
		x = 2 - x
	}
	return x
}

func scale2(vs []r2.Vec, scale func(r3.Vec) r3.Vec) []r2.Vec {
	for i, v := range vs {
		w := scale(r3.Vec{X: v.X, Y: v.Y})
		vs[i] = r2.Vec{X: w.X, Y: w.Y}
	}
	return vs
}

// scaleToArea rescales vs uniformly so its polygon area is area.
func scaleToArea(vs []r2.Vec, area float64) []r2.Vec {
	a := polygonArea(vs)
	if a <= 0 || area <= 0 {
		return vs
	}
	f := math.Sqrt(area / a)
	for i := range vs {
		vs[i] = r2.Scale(f, vs[i])
	}
	return vs
}

func polygonArea(vs []r2.Vec) float64 {
	a := 0.0
	for i := range vs {
		j := (i + 1) % len(vs)
		a += vs[i].X*vs[j].Y - vs[j].X*vs[i].Y
	}
	return a / 2
}
