// Package engine provides the generation-by-generation simulation core:
// the transition rules of each model variant, the per-replicate run driver,
// and the replicate aggregator that fills the result table.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/cultsim/internal/entropy"
)

// Model names accepted by the CLI, the API and config files.
const (
	ModelUnbiased     = "unbiased"
	ModelIndirectBias = "indirect-bias"
	ModelDirectional  = "directional"
	ModelRandomWalk   = "random-walk"
)

// ModelNames lists every registered model variant.
var ModelNames = []string{ModelUnbiased, ModelIndirectBias, ModelDirectional, ModelRandomWalk}

// Model is one transition-rule variant together with its parameters.
type Model interface {
	// Name returns the registered model name.
	Name() string

	// Params returns the model parameters for reporting.
	Params() map[string]float64

	// Validate rejects out-of-range parameters with ErrInvalidParameter.
	Validate() error

	// Frequencies reports whether the recorded summary is a trait frequency.
	Frequencies() bool

	// NewProcess creates the fresh state of one replicate. Every draw the
	// process makes comes from src.
	NewProcess(src *entropy.Source) Process
}

// Process is the evolving state of a single replicate.
type Process interface {
	// Init creates generation 0 and returns its summary.
	Init() (float64, error)

	// Step replaces the state with generation t, derived only from
	// generation t-1, and returns its summary.
	Step(t int) (float64, error)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameter}, args...)...)
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid("%s must be finite, got %v", name, v)
	}
	return nil
}

func checkProbability(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return invalid("%s must be in [0, 1], got %v", name, v)
	}
	return nil
}

func checkPopulation(n int) error {
	if n < 1 {
		return invalid("population size must be >= 1, got %d", n)
	}
	return nil
}
