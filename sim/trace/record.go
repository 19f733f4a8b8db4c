// Package trace records per-step decisions of the HPMC updaters for
// post-run analysis. It stores pure data and has no dependency on sim/.
package trace

// SweepRecord captures the trial-move statistics of one sweep.
type SweepRecord struct {
	Step          uint64
	Attempted     int64
	Accepted      int64
	OverlapChecks int64
}

// ClusterRecord captures one cluster move.
type ClusterRecord struct {
	Step      uint64
	Generator string
	Clusters  int // connected components found
	Flipped   int // components transformed
	Largest   int // particles in the largest component
	Rejected  int // components refused by field constraints or Metropolis
}

// ExchangeRecord captures one grand canonical insertion or deletion.
type ExchangeRecord struct {
	Step      uint64
	Type      int
	Insertion bool
	Accepted  bool
	Reason    string
}

// ShapeRecord captures one shape-evolution proposal.
type ShapeRecord struct {
	Step     uint64
	Type     int
	Accepted bool
	Reason   string
}

// ResizeRecord captures one box resize.
type ResizeRecord struct {
	Step    uint64
	Applied bool
	Reason  string
}
