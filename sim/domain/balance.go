package domain

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/hpmc-sim/hpmc-sim/sim/geom"
	"github.com/hpmc-sim/hpmc-sim/sim/index"
)

const (
	// maxBoundaryStep caps a boundary move at this fraction of the
	// narrower neighbouring partition.
	maxBoundaryStep = 0.05
	// DefaultBalanceTolerance is the accepted max/mean count ratio.
	DefaultBalanceTolerance = 1.02
)

// LoadBalancer moves partition boundaries toward equal particle counts.
type LoadBalancer struct {
	Axes          [3]bool
	Tolerance     float64
	MaxIterations int
}

// NewLoadBalancer balances every axis with the default tolerance and one
// iteration per call.
func NewLoadBalancer() *LoadBalancer {
	return &LoadBalancer{Axes: [3]bool{true, true, true}, Tolerance: DefaultBalanceTolerance, MaxIterations: 1}
}

// Imbalance returns max(N_i) / mean(N_i), or 1 when there are no particles.
func Imbalance(counts []int) float64 {
	total, most := 0, 0
	for _, c := range counts {
		total += c
		if c > most {
			most = c
		}
	}
	if total == 0 {
		return 1
	}
	return float64(most) / (float64(total) / float64(len(counts)))
}

// Balance adjusts d in place and reports whether any boundary moved.
func (lb *LoadBalancer) Balance(d *Decomposition, box geom.Box, src index.PositionSource) bool {
	tol := lb.Tolerance
	if tol < 1 {
		tol = DefaultBalanceTolerance
	}
	iters := lb.MaxIterations
	if iters < 1 {
		iters = 1
	}
	pd := planeDistances(box)
	moved := false
	for it := 0; it < iters; it++ {
		counts := d.Counts(box, src)
		imb := Imbalance(counts)
		if imb <= tol {
			break
		}
		logrus.Debugf("load balance iteration %d: imbalance %.3f", it, imb)
		for axis := 0; axis < d.grid.Dims; axis++ {
			if !lb.Axes[axis] || d.grid.N[axis] < 2 {
				continue
			}
			if lb.balanceAxis(d, axis, slabCounts(d, counts, axis), d.cfg.GhostWidth/pd[axis]) {
				moved = true
			}
		}
	}
	if final := Imbalance(d.Counts(box, src)); final > tol {
		logrus.Warnf("partition imbalance %.3f exceeds tolerance %.3f", final, tol)
	}
	return moved
}

// slabCounts sums partition counts over the axes other than axis.
func slabCounts(d *Decomposition, counts []int, axis int) []int {
	out := make([]int, d.grid.N[axis])
	for p, c := range counts {
		out[d.grid.Coord(p)[axis]] += c
	}
	return out
}

// balanceAxis moves each interior boundary so the cumulative count to its
// left approaches its share, assuming uniform density within each slab.
func (lb *LoadBalancer) balanceAxis(d *Decomposition, axis int, counts []int, minWidth float64) bool {
	old := d.bounds[axis]
	nb := append([]float64(nil), old...)
	n := len(counts)
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return false
	}
	target := float64(total) / float64(n)
	cum := 0.0
	for k := 1; k < n; k++ {
		cum += float64(counts[k-1])
		excess := cum - target*float64(k)
		// excess > 0 moves the boundary left into slab k-1, else right into slab k
		var step float64
		if excess > 0 {
			w := old[k] - old[k-1]
			if counts[k-1] > 0 {
				step = -excess / (float64(counts[k-1]) / w)
			}
		} else if excess < 0 {
			w := old[k+1] - old[k]
			if counts[k] > 0 {
				step = -excess / (float64(counts[k]) / w)
			}
		}
		narrow := math.Min(old[k]-old[k-1], old[k+1]-old[k])
		limit := math.Min(maxBoundaryStep*narrow, narrow/2)
		step = math.Max(-limit, math.Min(limit, step))
		nb[k] = old[k] + step
	}
	// keep every partition at least minWidth wide
	for k := 1; k < n; k++ {
		if nb[k]-nb[k-1] < minWidth {
			nb[k] = nb[k-1] + minWidth
		}
	}
	for k := n - 1; k >= 1; k-- {
		if nb[k+1]-nb[k] < minWidth {
			nb[k] = nb[k+1] - minWidth
		}
	}
	changed := false
	for k := 1; k < n; k++ {
		if nb[k] <= nb[k-1] || nb[k] >= nb[k+1] {
			return false
		}
		changed = changed || nb[k] != old[k]
	}
	if changed {
		d.bounds[axis] = nb
	}
	return changed
}
