package trace

// Tally counts attempts and acceptances of one kind of decision.
type Tally struct {
	Attempted int
	Accepted  int
}

// Ratio returns Accepted/Attempted, 0 when nothing was attempted.
func (t Tally) Ratio() float64 {
	if t.Attempted == 0 {
		return 0
	}
	return float64(t.Accepted) / float64(t.Attempted)
}

func (t *Tally) add(accepted bool) {
	t.Attempted++
	if accepted {
		t.Accepted++
	}
}

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Sweeps            int
	MoveAcceptance    float64 // accepted / attempted trial moves over all sweeps
	SweepAcceptance   Spread  // per-sweep acceptance ratios
	ClusterMoves      int
	ClustersFlipped   int
	ClusterRejections int
	LargestCluster    Spread
	Insertions        Tally
	Deletions         Tally
	ShapeMoves        Tally
	Resizes           Tally
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{}
	if st == nil {
		return summary
	}

	summary.Sweeps = len(st.Sweeps)
	var attempted, accepted int64
	perSweep := make([]float64, 0, len(st.Sweeps))
	for _, s := range st.Sweeps {
		attempted += s.Attempted
		accepted += s.Accepted
		if s.Attempted > 0 {
			perSweep = append(perSweep, float64(s.Accepted)/float64(s.Attempted))
		}
	}
	summary.SweepAcceptance = NewSpread(perSweep)
	if attempted > 0 {
		summary.MoveAcceptance = float64(accepted) / float64(attempted)
	}

	summary.ClusterMoves = len(st.Clusters)
	largest := make([]float64, 0, len(st.Clusters))
	for _, c := range st.Clusters {
		summary.ClustersFlipped += c.Flipped
		summary.ClusterRejections += c.Rejected
		largest = append(largest, float64(c.Largest))
	}
	summary.LargestCluster = NewSpread(largest)

	for _, e := range st.Exchanges {
		if e.Insertion {
			summary.Insertions.add(e.Accepted)
		} else {
			summary.Deletions.add(e.Accepted)
		}
	}
	for _, s := range st.Shapes {
		summary.ShapeMoves.add(s.Accepted)
	}
	for _, r := range st.Resizes {
		summary.Resizes.add(r.Applied)
	}
	return summary
}
