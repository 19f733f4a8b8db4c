package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Updater is an operation run between sweeps: cluster moves, grand
// canonical exchange, shape and box changes, tuning, analysis.
type Updater interface {
	Update(step uint64) error
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(step uint64) error

func (f UpdaterFunc) Update(step uint64) error { return f(step) }

type scheduled struct {
	name    string
	trigger Trigger
	updater Updater
}

// Simulation drives an Integrator and the updaters scheduled around it.
// Each step is one sweep followed by every updater whose trigger fires, in
// registration order.
type Simulation struct {
	integrator *Integrator
	updaters   []scheduled
}

// NewSimulation wraps in.
func NewSimulation(in *Integrator) *Simulation {
	return &Simulation{integrator: in}
}

// Integrator returns the driven integrator.
func (s *Simulation) Integrator() *Integrator { return s.integrator }

// Schedule registers u to run when trigger fires.
func (s *Simulation) Schedule(name string, trigger Trigger, u Updater) {
	s.updaters = append(s.updaters, scheduled{name: name, trigger: trigger, updater: u})
}

// Step returns the index of the next step.
func (s *Simulation) Step() uint64 { return s.integrator.Step() }

// Run advances n steps. It stops at the first error, wrapped with the step
// and updater name.
func (s *Simulation) Run(n int) error {
	for k := 0; k < n; k++ {
		step := s.integrator.Step()
		if err := s.integrator.Sweep(step); err != nil {
			return fmt.Errorf("step %d: sweep: %w", step, err)
		}
		for _, u := range s.updaters {
			if !u.trigger.Fire(step) {
				continue
			}
			if err := u.updater.Update(step); err != nil {
				return fmt.Errorf("step %d: %s: %w", step, u.name, err)
			}
		}
	}
	logrus.Debugf("simulation reached step %d", s.integrator.Step())
	return nil
}
