// Run driver: the strictly ordered generation loop of a single replicate.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/cultsim/internal/results"
)

// Phase is the lifecycle state of a Driver.
type Phase uint8

const (
	PhaseUninitialized Phase = iota // No generation produced yet
	PhaseGeneration                 // Generation Driver.Generation() is the latest recorded
	PhaseCompleted                  // All generations recorded
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseGeneration:
		return "generation"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Driver runs one replicate through every generation in strict order.
type Driver struct {
	Generations int // t_max, >= 1

	// OnGeneration, if set, is called after each generation is recorded.
	OnGeneration func(replicate, generation int, value float64)

	phase      Phase
	generation int
}

// NewDriver creates a driver for generations generations.
func NewDriver(generations int) *Driver {
	return &Driver{Generations: generations}
}

// Phase returns the current lifecycle state.
func (d *Driver) Phase() Phase {
	return d.phase
}

// Generation returns the latest recorded generation index.
func (d *Driver) Generation() int {
	return d.generation
}

// Run records generation 0 from p.Init, then generations 1..Generations-1
// from p.Step, into column replicate of tbl. A driver runs once.
func (d *Driver) Run(replicate int, p Process, tbl *results.Table) error {
	if d.phase != PhaseUninitialized {
		return fmt.Errorf("driver already %s", d.phase)
	}

	v, err := p.Init()
	if err != nil {
		return fmt.Errorf("replicate %d init: %w", replicate, err)
	}
	if err := d.record(replicate, 0, v, tbl); err != nil {
		return err
	}

	for t := 1; t < d.Generations; t++ {
		v, err = p.Step(t)
		if err != nil {
			return fmt.Errorf("replicate %d: %w", replicate, err)
		}
		if err := d.record(replicate, t, v, tbl); err != nil {
			return err
		}
	}

	d.phase = PhaseCompleted
	slog.Debug("replicate complete", "replicate", replicate+1, "generations", d.Generations, "final", v)
	return nil
}

func (d *Driver) record(replicate, t int, v float64, tbl *results.Table) error {
	if err := tbl.Record(replicate, t, v); err != nil {
		return err
	}
	d.phase = PhaseGeneration
	d.generation = t
	if d.OnGeneration != nil {
		d.OnGeneration(replicate, t, v)
	}
	return nil
}
