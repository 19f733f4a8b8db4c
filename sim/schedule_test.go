package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggers(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		fires   []uint64
	}{
		{"periodic", Periodic{Period: 3}, []uint64{0, 3, 6, 9}},
		{"periodic with phase", Periodic{Period: 4, Phase: 2}, []uint64{2, 6}},
		{"zero period never fires", Periodic{}, nil},
		{"after", After{Step: 7}, []uint64{8, 9}},
		{"before", Before{Step: 2}, []uint64{0, 1}},
		{"on", On{Step: 5}, []uint64{5}},
		{"and", And{Periodic{Period: 2}, After{Step: 3}}, []uint64{4, 6, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []uint64
			for s := uint64(0); s < 10; s++ {
				if tt.trigger.Fire(s) {
					got = append(got, s)
				}
			}
			assert.Equal(t, tt.fires, got)
		})
	}
}

func TestVariants(t *testing.T) {
	assert.Equal(t, 2.5, Constant(2.5).Value(100))

	r := Ramp{A: 1, B: 3, Start: 10, Length: 20}
	assert.Equal(t, 1.0, r.Value(0))
	assert.Equal(t, 2.0, r.Value(20))
	assert.Equal(t, 3.0, r.Value(30))
	assert.Equal(t, 3.0, r.Value(1000))

	p := Power{A: 1, B: 8, P: 3, Start: 0, Length: 10}
	assert.Equal(t, 1.0, p.Value(0))
	assert.Equal(t, 8.0, p.Value(10))
	assert.InDelta(t, math.Pow(1.5, 3), p.Value(5), 1e-12)
}

func TestSimulation_RunsUpdatersOnSchedule(t *testing.T) {
	in := newTestIntegrator(t, sphereGas(t, 8, 6), ModeSerial, 1, 1)
	s := NewSimulation(in)
	var steps []uint64
	s.Schedule("record", Periodic{Period: 2}, UpdaterFunc(func(step uint64) error {
		steps = append(steps, step)
		return nil
	}))
	require.NoError(t, s.Run(6))
	assert.Equal(t, []uint64{0, 2, 4}, steps)
	assert.Equal(t, uint64(6), s.Step())
}

func TestSimulation_StopsOnUpdaterError(t *testing.T) {
	in := newTestIntegrator(t, sphereGas(t, 8, 6), ModeSerial, 1, 1)
	s := NewSimulation(in)
	boom := errors.New("boom")
	s.Schedule("fail", On{Step: 1}, UpdaterFunc(func(uint64) error { return boom }))
	err := s.Run(5)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 1: fail")
	assert.Equal(t, uint64(2), s.Step())
}

func TestMoveSizeTuner(t *testing.T) {
	// BDD: low acceptance shrinks moves, high acceptance grows them, both
	// bounded by MaxScale per update
	in := newTestIntegrator(t, sphereGas(t, 8, 6), ModeSerial, 1, 1)
	require.NoError(t, in.SetMoveSize(0, MoveConfig{Translate: 0.1}))
	tuner := NewMoveSizeTuner(in, 0.5)

	in.counts[0].add(Counters{TranslateAttempted: 100, TranslateAccepted: 40})
	require.NoError(t, tuner.Update(0))
	assert.InDelta(t, 0.08, in.MoveSize(0).Translate, 1e-12)

	in.counts[0].add(Counters{TranslateAttempted: 100, TranslateAccepted: 100})
	require.NoError(t, tuner.Update(1))
	assert.InDelta(t, 0.16, in.MoveSize(0).Translate, 1e-12)

	in.counts[0].add(Counters{TranslateAttempted: 100})
	require.NoError(t, tuner.Update(2))
	assert.InDelta(t, 0.08, in.MoveSize(0).Translate, 1e-12)

	in.counts[0].add(Counters{TranslateAttempted: 3})
	require.NoError(t, tuner.Update(3))
	assert.InDelta(t, 0.08, in.MoveSize(0).Translate, 1e-12, "too few attempts to tune")

	tuner.MaxTranslate = 0.1
	in.counts[0].add(Counters{TranslateAttempted: 100, TranslateAccepted: 100})
	require.NoError(t, tuner.Update(4))
	assert.Equal(t, 0.1, in.MoveSize(0).Translate)
}

func TestMoveSizeTuner_WindowAfterReset(t *testing.T) {
	// GIVEN a tuner that has seen 1000 attempts
	in := newTestIntegrator(t, sphereGas(t, 8, 6), ModeSerial, 1, 1)
	require.NoError(t, in.SetMoveSize(0, MoveConfig{Translate: 0.1}))
	tuner := NewMoveSizeTuner(in, 0.5)
	in.counts[0].add(Counters{TranslateAttempted: 1000, TranslateAccepted: 500})
	require.NoError(t, tuner.Update(0))
	assert.InDelta(t, 0.1, in.MoveSize(0).Translate, 1e-12)

	// WHEN the counters are reset and a fresh window of low acceptance accrues
	in.ResetCounters()
	in.counts[0].add(Counters{TranslateAttempted: 100, TranslateAccepted: 40})
	require.NoError(t, tuner.Update(1))

	// THEN the window is the post-reset counts alone
	assert.InDelta(t, 0.08, in.MoveSize(0).Translate, 1e-12)

	// AND the next window is measured from the new snapshot
	in.counts[0].add(Counters{TranslateAttempted: 100, TranslateAccepted: 100})
	require.NoError(t, tuner.Update(2))
	assert.InDelta(t, 0.16, in.MoveSize(0).Translate, 1e-12)
}

func TestParallelFor(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 100} {
		seen := make([]int, 50)
		ParallelFor(workers, len(seen), func(i int) { seen[i]++ })
		for i, n := range seen {
			assert.Equal(t, 1, n, "workers=%d index %d", workers, i)
		}
	}
}
