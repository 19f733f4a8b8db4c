package trace

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Spread summarizes one quantity observed once per traced event, such as
// the acceptance ratio of each sweep or the largest cluster of each cluster
// move. Quantiles are empirical: they are always observed values, so a
// cluster size quantile is a real cluster size.
type Spread struct {
	Mean   float64
	StdDev float64 // sample standard deviation; 0 for fewer than two values
	P50    float64
	P95    float64
	Min    float64
	Max    float64
	Count  int
}

// NewSpread computes a Spread from raw values. Empty input gives the zero
// Spread.
func NewSpread(values []float64) Spread {
	if len(values) == 0 {
		return Spread{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sp := Spread{
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
	if len(sorted) == 1 {
		sp.Mean = sorted[0]
		return sp
	}
	sp.Mean, sp.StdDev = stat.MeanStdDev(sorted, nil)
	return sp
}
