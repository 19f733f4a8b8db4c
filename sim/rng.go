package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results, independent of worker count.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemTrialMove drives translation and rotation proposals.
	SubsystemTrialMove = "trial_move"
	// SubsystemCluster drives cluster generators and flip decisions.
	SubsystemCluster = "cluster"
	// SubsystemMuVT drives insertion and deletion.
	SubsystemMuVT = "muvt"
	// SubsystemShape drives shape-evolution proposals.
	SubsystemShape = "shape"
	// SubsystemFreeVolume drives free-volume trial insertions.
	SubsystemFreeVolume = "free_volume"
	// SubsystemDomain drives partition origin shifts.
	SubsystemDomain = "domain"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - ForSubsystem(name): masterSeed XOR fnv1a64(name)
//   - Stream(name, parts...): masterSeed XOR fnv1a64(name, parts...)
//
// Streams are what concurrent workers use: each (step, color, cell) or
// (step, partition) tuple gets its own generator, so results do not depend
// on how work is scheduled across goroutines.
//
// Thread-safety: ForSubsystem is NOT thread-safe. Stream allocates a fresh
// generator per call and may be used from any goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Stream returns a new generator seeded from the subsystem name and the
// given integers. Identical arguments always yield identical sequences.
func (p *PartitionedRNG) Stream(name string, parts ...uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name, parts...)))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the name followed by the
// little-endian bytes of each part.
func fnv1a64(s string, parts ...uint64) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	var buf [8]byte
	for _, v := range parts {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	return int64(h.Sum64())
}
