package sim

import "sync/atomic"

// Counters aggregates trial-move statistics over the run lifetime (or since
// the last reset).
type Counters struct {
	TranslateAttempted int64
	TranslateAccepted  int64
	RotateAttempted    int64
	RotateAccepted     int64
	OverlapChecks      int64 // pair tests performed by the oracle
	NearTolerance      int64 // decisions inside the tie tolerance band
}

// TranslateAcceptance returns the accepted fraction of translations, 0 if none.
func (c Counters) TranslateAcceptance() float64 {
	return ratio(c.TranslateAccepted, c.TranslateAttempted)
}

// RotateAcceptance returns the accepted fraction of rotations, 0 if none.
func (c Counters) RotateAcceptance() float64 {
	return ratio(c.RotateAccepted, c.RotateAttempted)
}

// Add returns the field-wise sum.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		TranslateAttempted: c.TranslateAttempted + o.TranslateAttempted,
		TranslateAccepted:  c.TranslateAccepted + o.TranslateAccepted,
		RotateAttempted:    c.RotateAttempted + o.RotateAttempted,
		RotateAccepted:     c.RotateAccepted + o.RotateAccepted,
		OverlapChecks:      c.OverlapChecks + o.OverlapChecks,
		NearTolerance:      c.NearTolerance + o.NearTolerance,
	}
}

// Sub returns the field-wise difference c - o.
func (c Counters) Sub(o Counters) Counters {
	return Counters{
		TranslateAttempted: c.TranslateAttempted - o.TranslateAttempted,
		TranslateAccepted:  c.TranslateAccepted - o.TranslateAccepted,
		RotateAttempted:    c.RotateAttempted - o.RotateAttempted,
		RotateAccepted:     c.RotateAccepted - o.RotateAccepted,
		OverlapChecks:      c.OverlapChecks - o.OverlapChecks,
		NearTolerance:      c.NearTolerance - o.NearTolerance,
	}
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// sharedCounters is the cross-worker accumulator. Workers count locally
// and merge once per cell or partition.
type sharedCounters struct {
	translateAttempted atomic.Int64
	translateAccepted  atomic.Int64
	rotateAttempted    atomic.Int64
	rotateAccepted     atomic.Int64
}

func (s *sharedCounters) add(c Counters) {
	s.translateAttempted.Add(c.TranslateAttempted)
	s.translateAccepted.Add(c.TranslateAccepted)
	s.rotateAttempted.Add(c.RotateAttempted)
	s.rotateAccepted.Add(c.RotateAccepted)
}

func (s *sharedCounters) load() Counters {
	return Counters{
		TranslateAttempted: s.translateAttempted.Load(),
		TranslateAccepted:  s.translateAccepted.Load(),
		RotateAttempted:    s.rotateAttempted.Load(),
		RotateAccepted:     s.rotateAccepted.Load(),
	}
}

func (s *sharedCounters) reset() {
	s.translateAttempted.Store(0)
	s.translateAccepted.Store(0)
	s.rotateAttempted.Store(0)
	s.rotateAccepted.Store(0)
}
