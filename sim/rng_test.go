package sim

import (
	"math"
	"testing"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemCluster).Float64()
		b := rng2.ForSubsystem(SubsystemCluster).Float64()
		if a != b {
			t.Errorf("Value %d: got %v and %v, want identical", i, a, b)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from subsystem A doesn't affect subsystem B
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemMuVT).Float64()
	}
	aFirst := rngA.ForSubsystem(SubsystemCluster).Float64()

	fresh := NewPartitionedRNG(NewSimulationKey(42))
	if want := fresh.ForSubsystem(SubsystemCluster).Float64(); aFirst != want {
		t.Errorf("cluster first value = %v, want %v (isolation broken)", aFirst, want)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	// BDD: Same name returns same *rand.Rand instance
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if rng.ForSubsystem(SubsystemShape) != rng.ForSubsystem(SubsystemShape) {
		t.Error("ForSubsystem returned different instances for same name")
	}
	if len(rng.subsystems) != 1 {
		t.Errorf("have %d cached subsystems, want 1", len(rng.subsystems))
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	seed := int64(12345)
	rng := NewPartitionedRNG(NewSimulationKey(seed))
	if rng.Key() != SimulationKey(seed) {
		t.Errorf("Key() = %v, want %v", rng.Key(), seed)
	}
}

func TestPartitionedRNG_Stream(t *testing.T) {
	// BDD: streams depend only on their arguments, never on call order
	rng := NewPartitionedRNG(NewSimulationKey(7))
	first := rng.Stream(SubsystemTrialMove, 3, 1, 5).Float64()
	rng.Stream(SubsystemTrialMove, 3, 1, 6).Float64()
	again := rng.Stream(SubsystemTrialMove, 3, 1, 5).Float64()
	if first != again {
		t.Errorf("Stream not reproducible: %v != %v", first, again)
	}

	other := NewPartitionedRNG(NewSimulationKey(8)).Stream(SubsystemTrialMove, 3, 1, 5).Float64()
	if other == first {
		t.Error("different keys produced the same stream")
	}
	if rng.Stream(SubsystemTrialMove, 3, 1, 6).Float64() == first {
		t.Error("different cells produced the same stream")
	}
}

// === fnv1a64 Tests ===

func TestFnv1a64_Collision(t *testing.T) {
	hashes := make(map[int64]string)
	add := func(label string, h int64) {
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", label, existing, h)
		}
		hashes[h] = label
	}
	for _, name := range []string{SubsystemTrialMove, SubsystemCluster, SubsystemMuVT, SubsystemShape, SubsystemFreeVolume, SubsystemDomain, ""} {
		add(name, fnv1a64(name))
	}
	add("trial_move/0", fnv1a64(SubsystemTrialMove, 0))
	add("trial_move/1", fnv1a64(SubsystemTrialMove, 1))
	add("trial_move/0/1", fnv1a64(SubsystemTrialMove, 0, 1))
}

// === Benchmark ===

func BenchmarkPartitionedRNG_Stream(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < b.N; i++ {
		rng.Stream(SubsystemTrialMove, uint64(i), 0, 1)
	}
}
