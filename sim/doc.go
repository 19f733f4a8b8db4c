// Package sim provides the hard-particle Monte Carlo engine: the particle
// system, the overlap oracle, and the integrator that sweeps local trial moves.
//
// # Reading Guide
//
// Start with these files to understand the sweep kernel:
//   - system.go: particles (type, pose, tag) in a periodic box, plus the shape table
//   - oracle.go: overlap and field queries against the cell list, with image enumeration
//   - integrator.go: move sizes, counters, and Sweep/Run over the configured mode
//   - sweep.go: serial, checkerboard, and domain-decomposed sweep drivers
//
// # Architecture
//
// The sim package owns the integrator; geometry and the policies built on top
// of it live in sub-packages:
//   - sim/geom/: vectors, quaternions, triclinic boxes, and lattices
//   - sim/shape/: shape kinds, support functions, and pairwise overlap tests
//   - sim/index/: the cell list used for neighbor queries
//   - sim/field/: external potentials (hard walls, harmonic springs)
//   - sim/domain/: spatial partitioning, ghost layers, and load balancing
//   - sim/cluster/, sim/muvt/, sim/shapemove/, sim/boxresize/: updaters run between sweeps
//   - sim/freevolume/: trial-insertion estimates of the free volume
//   - sim/trace/: decision trace recording and summaries
//
// # Determinism
//
// Every random draw comes from PartitionedRNG (rng.go), keyed by subsystem,
// step, and partition or particle tag. Identical seeds reproduce identical
// trajectories regardless of the number of worker goroutines.
//
// # Scheduling
//
// Simulation (simulation.go) runs one sweep per step and then every Updater
// whose Trigger (schedule.go) fires. Variants ramp scalar parameters over
// steps; MoveSizeTuner (tune.go) adjusts move sizes toward a target acceptance.
package sim
