package sim

import (
	"errors"

	"github.com/hpmc-sim/hpmc-sim/sim/domain"
)

var (
	// ErrInvalidConfig reports user-supplied configuration the engine cannot run.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInfeasible reports a configuration with overlapping particles or a
	// violated hard constraint.
	ErrInfeasible = errors.New("infeasible configuration")
	// ErrGhostMargin reports a ghost layer too thin for domain decomposition.
	ErrGhostMargin = domain.ErrGhostMargin
)
