package sim

import (
	"fmt"
	"math"

	"github.com/hpmc-sim/hpmc-sim/sim/domain"
	"github.com/hpmc-sim/hpmc-sim/sim/shape"
)

// MoveConfig groups the trial move sizes of one particle type.
type MoveConfig struct {
	Translate float64 // max displacement (uniform) or standard deviation (gaussian)
	Rotate    float64 // max rotation angle in radians
}

// Distribution selects the translation proposal distribution.
type Distribution string

const (
	DistributionUniform  Distribution = "uniform"  // uniform in a ball (disk in 2D)
	DistributionGaussian Distribution = "gaussian" // isotropic normal
)

// Mode selects how a sweep is executed.
type Mode string

const (
	ModeSerial       Mode = "serial"       // one goroutine, fixed particle order
	ModeCheckerboard Mode = "checkerboard" // colored cells swept concurrently
	ModeDomain       Mode = "domain"       // spatial partitions with ghost layers
)

var validModes = map[Mode]bool{ModeSerial: true, ModeCheckerboard: true, ModeDomain: true, "": true}

// IsValidMode reports whether the mode name is recognized. Empty means serial.
func IsValidMode(m string) bool { return validModes[Mode(m)] }

// IntegratorConfig groups Mono Integrator parameters.
type IntegratorConfig struct {
	Moves             []MoveConfig // per type, indexed like the shape table
	NSelect           int          // trials per particle per sweep (>= 1)
	TranslateFraction float64      // probability of a translation when the type can rotate
	Distribution      Distribution
	Mode              Mode
	Workers           int     // goroutines for concurrent modes; 0 = one per CPU
	Epsilon           float64 // overlap tie tolerance in length units
	Margin            float64 // cell list drift margin; 0 = 0.3 x max diameter
	Decomposition     domain.Config
}

// DefaultIntegratorConfig returns a serial configuration for ntypes types
// with move sizes of 0.1 length units and 0.1 radians.
func DefaultIntegratorConfig(ntypes int) IntegratorConfig {
	moves := make([]MoveConfig, ntypes)
	for i := range moves {
		moves[i] = MoveConfig{Translate: 0.1, Rotate: 0.1}
	}
	return IntegratorConfig{
		Moves:             moves,
		NSelect:           4,
		TranslateFraction: 0.5,
		Distribution:      DistributionUniform,
		Mode:              ModeSerial,
		Epsilon:           shape.DefaultEpsilon,
		Decomposition:     domain.Config{RandomShift: true},
	}
}

// Validate checks cfg for a system with ntypes particle types.
func (c IntegratorConfig) Validate(ntypes int) error {
	if len(c.Moves) != ntypes {
		return fmt.Errorf("%w: need move sizes for %d types, got %d", ErrInvalidConfig, ntypes, len(c.Moves))
	}
	for i, m := range c.Moves {
		if !nonNegative(m.Translate) {
			return fmt.Errorf("%w: moves[%d].translate must be non-negative, got %f", ErrInvalidConfig, i, m.Translate)
		}
		if !nonNegative(m.Rotate) {
			return fmt.Errorf("%w: moves[%d].rotate must be non-negative, got %f", ErrInvalidConfig, i, m.Rotate)
		}
	}
	if c.NSelect < 1 {
		return fmt.Errorf("%w: nselect must be at least 1, got %d", ErrInvalidConfig, c.NSelect)
	}
	if math.IsNaN(c.TranslateFraction) || c.TranslateFraction < 0 || c.TranslateFraction > 1 {
		return fmt.Errorf("%w: translate_fraction must be in [0,1], got %f", ErrInvalidConfig, c.TranslateFraction)
	}
	switch c.Distribution {
	case DistributionUniform, DistributionGaussian, "":
	default:
		return fmt.Errorf("%w: unknown distribution %q", ErrInvalidConfig, c.Distribution)
	}
	if !IsValidMode(string(c.Mode)) {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if !nonNegative(c.Epsilon) {
		return fmt.Errorf("%w: epsilon must be non-negative, got %g", ErrInvalidConfig, c.Epsilon)
	}
	if !nonNegative(c.Margin) {
		return fmt.Errorf("%w: margin must be non-negative, got %f", ErrInvalidConfig, c.Margin)
	}
	return nil
}

func nonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
