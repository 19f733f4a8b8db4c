package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every updater decision.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelSweeps additionally captures per-sweep move statistics.
	TraceLevelSweeps TraceLevel = "sweeps"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelSweeps:    true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a run. A nil
// *SimulationTrace accepts and drops every record.
type SimulationTrace struct {
	Config    TraceConfig
	Sweeps    []SweepRecord
	Clusters  []ClusterRecord
	Exchanges []ExchangeRecord
	Shapes    []ShapeRecord
	Resizes   []ResizeRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{Config: config}
}

func (st *SimulationTrace) enabled() bool {
	return st != nil && st.Config.Level != TraceLevelNone && st.Config.Level != ""
}

// RecordSweep appends sweep statistics when the level is TraceLevelSweeps.
func (st *SimulationTrace) RecordSweep(r SweepRecord) {
	if st.enabled() && st.Config.Level == TraceLevelSweeps {
		st.Sweeps = append(st.Sweeps, r)
	}
}

// RecordCluster appends a cluster move record.
func (st *SimulationTrace) RecordCluster(r ClusterRecord) {
	if st.enabled() {
		st.Clusters = append(st.Clusters, r)
	}
}

// RecordExchange appends an insertion or deletion record.
func (st *SimulationTrace) RecordExchange(r ExchangeRecord) {
	if st.enabled() {
		st.Exchanges = append(st.Exchanges, r)
	}
}

// RecordShape appends a shape proposal record.
func (st *SimulationTrace) RecordShape(r ShapeRecord) {
	if st.enabled() {
		st.Shapes = append(st.Shapes, r)
	}
}

// RecordResize appends a box resize record.
func (st *SimulationTrace) RecordResize(r ResizeRecord) {
	if st.enabled() {
		st.Resizes = append(st.Resizes, r)
	}
}
