package sim

import (
	"math"

	"github.com/sirupsen/logrus"
)

// MoveSizeTuner scales per-type move sizes toward a target acceptance
// ratio, measured over the window since its previous update.
type MoveSizeTuner struct {
	Target       float64 // desired acceptance ratio in (0,1)
	MaxScale     float64 // largest factor applied per update (> 1)
	MaxTranslate float64 // upper bound on translation size; 0 = unbounded
	MaxRotate    float64 // upper bound on rotation size
	MinAttempts  int64   // skip a move kind with fewer attempts in the window

	in   *Integrator
	last []Counters
}

// NewMoveSizeTuner returns a tuner for in aiming at target acceptance.
func NewMoveSizeTuner(in *Integrator, target float64) *MoveSizeTuner {
	return &MoveSizeTuner{
		Target:      target,
		MaxScale:    2,
		MaxRotate:   math.Pi,
		MinAttempts: 10,
		in:          in,
	}
}

// Update rescales every type's move sizes once. It implements Updater.
func (t *MoveSizeTuner) Update(step uint64) error {
	ntypes := t.in.sys.Shapes.Len()
	if len(t.last) != ntypes {
		t.last = make([]Counters, ntypes)
	}
	for typ := 0; typ < ntypes; typ++ {
		now := t.in.TypeCounters(typ)
		w := window(now, t.last[typ])
		t.last[typ] = now

		m := t.in.MoveSize(typ)
		if w.TranslateAttempted >= t.MinAttempts {
			m.Translate = t.scaled(m.Translate, w.TranslateAcceptance(), t.MaxTranslate)
		}
		if w.RotateAttempted >= t.MinAttempts {
			m.Rotate = t.scaled(m.Rotate, w.RotateAcceptance(), t.MaxRotate)
		}
		if err := t.in.SetMoveSize(typ, m); err != nil {
			return err
		}
		logrus.Debugf("step %d: type %d move sizes translate=%.4f rotate=%.4f", step, typ, m.Translate, m.Rotate)
	}
	return nil
}

// window returns the counts accumulated since last. A counter below its
// snapshot means the integrator was reset in between, so the whole of now
// is the window.
func window(now, last Counters) Counters {
	if now.TranslateAttempted < last.TranslateAttempted || now.TranslateAccepted < last.TranslateAccepted ||
		now.RotateAttempted < last.RotateAttempted || now.RotateAccepted < last.RotateAccepted {
		return now
	}
	return now.Sub(last)
}

func (t *MoveSizeTuner) scaled(size, acceptance, limit float64) float64 {
	f := acceptance / t.Target
	f = math.Max(1/t.MaxScale, math.Min(t.MaxScale, f))
	size *= f
	if limit > 0 {
		size = math.Min(size, limit)
	}
	return size
}
