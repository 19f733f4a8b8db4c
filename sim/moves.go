package sim

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
)

type moveKind int

const (
	moveNone moveKind = iota
	moveTranslate
	moveRotate
)

// chooseMove picks the move type for one trial. Non-orientable types and
// types with a zero rotation size always translate; a draw is consumed only
// when both kinds are possible.
func chooseMove(rng *rand.Rand, m MoveConfig, orientable bool, translateFraction float64) moveKind {
	canTranslate := m.Translate > 0
	canRotate := orientable && m.Rotate > 0
	switch {
	case canTranslate && canRotate:
		if rng.Float64() < translateFraction {
			return moveTranslate
		}
		return moveRotate
	case canTranslate:
		return moveTranslate
	case canRotate:
		return moveRotate
	}
	return moveNone
}

// translate displaces pose and wraps the result into the box.
func translate(rng *rand.Rand, box geom.Box, pose geom.Pose, size float64, dist Distribution) geom.Pose {
	var d r3.Vec
	if dist == DistributionGaussian {
		d = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64()}
		if box.Dimensions == 3 {
			d.Z = rng.NormFloat64()
		}
		d = r3.Scale(size, d)
	} else {
		d = geom.RandomInBall(rng, box.Dimensions, size)
	}
	pos, _ := box.Wrap(r3.Add(pose.Position, d))
	return geom.Pose{Position: pos, Orientation: pose.Orientation}
}

// rotate applies a rotation by a uniform angle in [-size, size] about a
// uniform random axis (z in 2D). The proposal is symmetric.
func rotate(rng *rand.Rand, dims int, pose geom.Pose, size float64) geom.Pose {
	axis := r3.Vec{Z: 1}
	if dims == 3 {
		axis = geom.RandomUnitVector(rng, 3)
	}
	angle := size * (2*rng.Float64() - 1)
	q := geom.Normalize(geom.Compose(geom.AxisAngle(axis, angle), pose.Orientation))
	return geom.Pose{Position: pose.Position, Orientation: q}
}

// metropolis accepts an energy change dU (in kT) with probability
// min(1, exp(-dU)). A draw is consumed only when dU > 0.
func metropolis(rng *rand.Rand, dU float64) bool {
	if dU <= 0 {
		return true
	}
	if math.IsInf(dU, 1) || math.IsNaN(dU) {
		return false
	}
	return rng.Float64() < math.Exp(-dU)
}
