// Replicate aggregation: runs every replicate of a model and assembles the result table.
package engine

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/cultsim/internal/entropy"
	"github.com/talgya/cultsim/internal/results"
)

// Streams selects how replicates draw random numbers.
type Streams uint8

const (
	// StreamShared runs replicates sequentially on one advancing stream.
	StreamShared Streams = iota

	// StreamPerReplicate gives replicate r its own stream seeded with
	// entropy.Derive(seed, r), so replicates can run in parallel. Output is
	// identical for any worker count but differs from StreamShared.
	StreamPerReplicate
)

// String returns the config name of the stream mode.
func (s Streams) String() string {
	switch s {
	case StreamShared:
		return "shared"
	case StreamPerReplicate:
		return "per-replicate"
	default:
		return fmt.Sprintf("Streams(%d)", uint8(s))
	}
}

// ParseStreams maps a config name to a Streams mode. Empty means shared.
func ParseStreams(s string) (Streams, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared":
		return StreamShared, nil
	case "per-replicate", "independent":
		return StreamPerReplicate, nil
	default:
		return 0, fmt.Errorf("%w: unknown stream mode %q (valid: shared, per-replicate)", ErrInvalidParameter, s)
	}
}

// Options controls one simulation run.
type Options struct {
	Generations int   // t_max, >= 1
	Replicates  int   // r_max, >= 1
	Seed        int64 // Same seed, same options: identical table
	Streams     Streams

	// Workers bounds parallel replicates in StreamPerReplicate mode.
	// 0 means GOMAXPROCS. Ignored for StreamShared.
	Workers int

	// OnGeneration is called after every recorded cell. In StreamPerReplicate
	// mode with Workers > 1 it may be called from several goroutines.
	OnGeneration func(replicate, generation int, value float64)
}

// Validate rejects out-of-range options with ErrInvalidParameter.
func (o Options) Validate() error {
	if o.Generations < 1 {
		return invalid("generation count must be >= 1, got %d", o.Generations)
	}
	if o.Replicates < 1 {
		return invalid("replicate count must be >= 1, got %d", o.Replicates)
	}
	if o.Workers < 0 {
		return invalid("workers must be >= 0, got %d", o.Workers)
	}
	if o.Streams > StreamPerReplicate {
		return invalid("unknown stream mode %v", o.Streams)
	}
	return nil
}

// Run executes every replicate of m and returns the completed result.
// Parameters are validated before any generation runs. On error no
// result is returned.
func Run(m Model, opts Options) (*results.Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}

	start := time.Now()
	slog.Debug("simulation started",
		"model", m.Name(),
		"generations", opts.Generations,
		"replicates", opts.Replicates,
		"seed", opts.Seed,
		"streams", opts.Streams,
	)

	tbl := results.NewTable(opts.Generations, opts.Replicates)
	var err error
	switch opts.Streams {
	case StreamPerReplicate:
		err = runIndependent(m, opts, tbl)
	default:
		err = runShared(m, opts, tbl)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}
	if !tbl.Complete() {
		return nil, fmt.Errorf("%s: %w", m.Name(), results.ErrIncomplete)
	}

	res := &results.Result{
		Model:   m.Name(),
		Seed:    opts.Seed,
		Streams: opts.Streams.String(),
		Params:  m.Params(),
		Table:   tbl,
		Mean:    tbl.Mean(),
		Summary: results.Summarize(tbl, m.Frequencies()),
	}

	slog.Info("simulation complete",
		"model", m.Name(),
		"generations", opts.Generations,
		"replicates", opts.Replicates,
		"final_mean", fmt.Sprintf("%.4f", res.Summary.FinalMean),
		"elapsed", time.Since(start),
	)
	return res, nil
}

// runShared runs replicates in order on one stream, so no two replicates
// replay the same draws.
func runShared(m Model, opts Options, tbl *results.Table) error {
	src := entropy.NewSource(opts.Seed)
	for r := 0; r < opts.Replicates; r++ {
		d := NewDriver(opts.Generations)
		d.OnGeneration = opts.OnGeneration
		if err := d.Run(r, m.NewProcess(src), tbl); err != nil {
			return err
		}
	}
	slog.Debug("shared stream drained", "seed", src.Seed(), "draws", src.Draws())
	return nil
}

// runIndependent runs each replicate on its own derived stream. Each
// replicate writes only its own table column.
func runIndependent(m Model, opts Options, tbl *results.Table) error {
	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for r := 0; r < opts.Replicates; r++ {
		g.Go(func() error {
			d := NewDriver(opts.Generations)
			d.OnGeneration = opts.OnGeneration
			src := entropy.NewSource(entropy.Derive(opts.Seed, r))
			return d.Run(r, m.NewProcess(src), tbl)
		})
	}
	return g.Wait()
}
