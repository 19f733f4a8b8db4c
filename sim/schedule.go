package sim

import "math"

// Trigger decides on which steps an updater runs.
type Trigger interface {
	Fire(step uint64) bool
}

// Periodic fires when (step - Phase) is a non-negative multiple of Period.
type Periodic struct {
	Period uint64
	Phase  uint64
}

func (p Periodic) Fire(step uint64) bool {
	if p.Period == 0 || step < p.Phase {
		return false
	}
	return (step-p.Phase)%p.Period == 0
}

// After fires on every step strictly greater than Step.
type After struct{ Step uint64 }

func (a After) Fire(step uint64) bool { return step > a.Step }

// Before fires on every step strictly less than Step.
type Before struct{ Step uint64 }

func (b Before) Fire(step uint64) bool { return step < b.Step }

// On fires once, at Step.
type On struct{ Step uint64 }

func (o On) Fire(step uint64) bool { return step == o.Step }

// And fires when every member fires.
type And []Trigger

func (a And) Fire(step uint64) bool {
	for _, t := range a {
		if !t.Fire(step) {
			return false
		}
	}
	return true
}

// Variant is a step-dependent scalar.
type Variant interface {
	Value(step uint64) float64
}

// Constant is a fixed value.
type Constant float64

func (c Constant) Value(uint64) float64 { return float64(c) }

// Ramp interpolates linearly from A to B over [Start, Start+Length] and
// holds the end values outside it.
type Ramp struct {
	A, B   float64
	Start  uint64
	Length uint64
}

func (r Ramp) Value(step uint64) float64 {
	s := rampFraction(step, r.Start, r.Length)
	return r.A + (r.B-r.A)*s
}

// Power interpolates from A to B as (A^(1/P) + s(B^(1/P) - A^(1/P)))^P, with
// s the linear fraction through [Start, Start+Length]. A and B must be
// positive.
type Power struct {
	A, B   float64
	P      float64
	Start  uint64
	Length uint64
}

func (p Power) Value(step uint64) float64 {
	s := rampFraction(step, p.Start, p.Length)
	switch s {
	case 0:
		return p.A
	case 1:
		return p.B
	}
	a, b := math.Pow(p.A, 1/p.P), math.Pow(p.B, 1/p.P)
	return math.Pow(a+s*(b-a), p.P)
}

func rampFraction(step, start, length uint64) float64 {
	if step <= start {
		return 0
	}
	if length == 0 || step >= start+length {
		return 1
	}
	return float64(step-start) / float64(length)
}
