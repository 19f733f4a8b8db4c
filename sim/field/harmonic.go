package field

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

// Reference is the equilibrium pose of one tagged particle.
type Reference struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Harmonic tethers tagged particles to reference poses:
//
//	U = KTranslate/2 |x - x0|^2 + KRotate/2 min_s |q - q0 s|^2
//
// where the displacement uses the minimum image and s runs over
// Symmetries (the identity is always included). Untracked tags feel no
// force. Harmonic has no hard constraints.
type Harmonic struct {
	stats
	KTranslate float64
	KRotate    float64
	References map[uint64]Reference
	Symmetries []quat.Number
}

func (h *Harmonic) Energy(box geom.Box, p Particle) float64 {
	h.count()
	ref, ok := h.References[p.Tag]
	if !ok {
		return 0
	}
	d := box.MinImage(r3.Sub(p.Pose.Position, ref.Position))
	e := h.KTranslate / 2 * r3.Norm2(d)
	if h.KRotate != 0 {
		e += h.KRotate / 2 * h.orientationDistance2(p.Pose.Orientation, ref.Orientation)
	}
	return e
}

func (h *Harmonic) orientationDistance2(q, ref quat.Number) float64 {
	best := norm2(quat.Sub(q, ref))
	for _, s := range h.Symmetries {
		best = math.Min(best, norm2(quat.Sub(q, quat.Mul(ref, s))))
	}
	return best
}

func norm2(q quat.Number) float64 {
	return q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag
}

func (h *Harmonic) EnergyDelta(box geom.Box, p Particle, trial geom.Pose) float64 {
	if _, ok := h.References[p.Tag]; !ok {
		return 0
	}
	return delta(h, box, p, trial)
}

func (h *Harmonic) IsCompatible(geom.Box, Particle) bool {
	return true
}
