package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/talgya/cultsim/internal/config"
	"github.com/talgya/cultsim/internal/engine"
	"github.com/talgya/cultsim/internal/logging"
	"github.com/talgya/cultsim/internal/results"
)

func newUnbiasedCmd(a *app) *cobra.Command {
	def := config.Default().Unbiased
	cmd := &cobra.Command{
		Use:   "unbiased",
		Short: "Unbiased transmission: copy random members of the previous generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			u := &a.cfg.Unbiased
			if f.Changed("n") {
				u.N, _ = f.GetInt("n")
			}
			if f.Changed("p0") {
				u.P0, _ = f.GetFloat64("p0")
			}
			return a.run(cmd, engine.ModelUnbiased, &u.RunConfig)
		},
	}
	cmd.Flags().Int("n", def.N, "Population size")
	cmd.Flags().Float64("p0", def.P0, "Probability that a generation-0 individual carries trait A")
	addRunFlags(cmd, def.RunConfig)
	return cmd
}

func newIndirectBiasCmd(a *app) *cobra.Command {
	def := config.Default().IndirectBias
	cmd := &cobra.Command{
		Use:     "indirect-bias",
		Aliases: []string{"bias"},
		Short:   "Success bias: copy in proportion to payoff, A earns 1+s",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			b := &a.cfg.IndirectBias
			if f.Changed("n") {
				b.N, _ = f.GetInt("n")
			}
			if f.Changed("s") {
				b.S, _ = f.GetFloat64("s")
			}
			if f.Changed("p0") {
				b.P0, _ = f.GetFloat64("p0")
			}
			return a.run(cmd, engine.ModelIndirectBias, &b.RunConfig)
		},
	}
	cmd.Flags().Int("n", def.N, "Population size")
	cmd.Flags().Float64("s", def.S, "Bias strength (payoff advantage of trait A)")
	cmd.Flags().Float64("p0", def.P0, "Probability that a generation-0 individual carries trait A")
	addRunFlags(cmd, def.RunConfig)
	return cmd
}

func newDirectionalCmd(a *app) *cobra.Command {
	def := config.Default().Directional
	cmd := &cobra.Command{
		Use:   "directional",
		Short: "Directional selection: a scalar trait drifts by c per generation plus noise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			d := &a.cfg.Directional
			if f.Changed("x0") {
				d.X0, _ = f.GetFloat64("x0")
			}
			if f.Changed("c") {
				d.C, _ = f.GetFloat64("c")
			}
			if f.Changed("sigma") {
				d.Sigma, _ = f.GetFloat64("sigma")
			}
			if f.Changed("noise") {
				d.Noise, _ = f.GetString("noise")
			}
			return a.run(cmd, engine.ModelDirectional, &d.RunConfig)
		},
	}
	cmd.Flags().Float64("x0", def.X0, "Initial trait value")
	cmd.Flags().Float64("c", def.C, "Selection coefficient added every generation")
	cmd.Flags().Float64("sigma", def.Sigma, "Standard deviation of environmental noise (0 disables it)")
	cmd.Flags().String("noise", def.Noise, "Noise kind: gaussian or simplex")
	addRunFlags(cmd, def.RunConfig)
	return cmd
}

func newRandomWalkCmd(a *app) *cobra.Command {
	def := config.Default().RandomWalk
	cmd := &cobra.Command{
		Use:     "random-walk",
		Aliases: []string{"walk"},
		Short:   "Biased random walk: step +1 with probability 0.5+bias, else -1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			w := &a.cfg.RandomWalk
			if f.Changed("bias") {
				w.Bias, _ = f.GetFloat64("bias")
			}
			if f.Changed("start-min") {
				w.StartMin, _ = f.GetInt("start-min")
			}
			if f.Changed("start-max") {
				w.StartMax, _ = f.GetInt("start-max")
			}
			return a.run(cmd, engine.ModelRandomWalk, &w.RunConfig)
		},
	}
	cmd.Flags().Float64("bias", def.Bias, "Bias added to the 0.5 step-up probability (clipped to [0, 1])")
	cmd.Flags().Int("start-min", def.StartMin, "Lowest starting position")
	cmd.Flags().Int("start-max", def.StartMax, "Highest starting position")
	addRunFlags(cmd, def.RunConfig)
	return cmd
}

// addRunFlags registers the flags shared by every model command. Defaults
// shown in help are the built-in ones; unset flags fall back to the config.
func addRunFlags(cmd *cobra.Command, def config.RunConfig) {
	f := cmd.Flags()
	f.Int("generations", def.Generations, "Number of generations per replicate")
	f.Int("replicates", def.Replicates, "Number of independent replicates")
	f.Int64("seed", 0, "RNG seed (default from config, else random)")
	f.String("streams", "shared", "Random stream layout: shared or per-replicate")
	f.Int("workers", 0, "Parallel replicates with per-replicate streams (0 = all CPUs)")
	f.String("out", "-", "CSV output path, - for stdout")
	f.Bool("mean", false, "Append the per-generation mean as a final column")
}

func applyRunFlags(f *pflag.FlagSet, rc *config.RunConfig) {
	if f.Changed("generations") {
		rc.Generations, _ = f.GetInt("generations")
	}
	if f.Changed("replicates") {
		rc.Replicates, _ = f.GetInt("replicates")
	}
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		rc.Seed = &seed
	}
	if f.Changed("streams") {
		rc.Streams, _ = f.GetString("streams")
	}
	if f.Changed("workers") {
		rc.Workers, _ = f.GetInt("workers")
	}
}

// run executes the named model with its config section, writes the table
// and reports a summary on stderr.
func (a *app) run(cmd *cobra.Command, name string, rc *config.RunConfig) error {
	f := cmd.Flags()
	applyRunFlags(f, rc)
	out := a.cfg.Output
	if f.Changed("out") {
		out.Path, _ = f.GetString("out")
	}
	if f.Changed("mean") {
		out.Mean, _ = f.GetBool("mean")
	}

	m, runCfg, err := a.cfg.Model(name)
	if err != nil {
		return err
	}
	opts, err := runCfg.Options()
	if err != nil {
		return err
	}
	if ctx := cmd.Context(); slog.Default().Enabled(ctx, logging.LevelTrace) {
		opts.OnGeneration = func(replicate, generation int, value float64) {
			slog.Log(ctx, logging.LevelTrace, "generation",
				"replicate", replicate+1, "generation", generation, "value", value)
		}
	}

	res, err := engine.Run(m, opts)
	if err != nil {
		return err
	}

	jsonOut, _ := f.GetBool("json")
	if err := writeResult(cmd.OutOrStdout(), out, res, jsonOut); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), m, res)
	return nil
}

// writeResult writes res to out.Path, or to stdout when the path is "-" or empty.
func writeResult(stdout io.Writer, out config.OutputConfig, res *results.Result, jsonOut bool) (err error) {
	w := stdout
	if out.Path != "" && out.Path != "-" {
		file, createErr := os.Create(out.Path)
		if createErr != nil {
			return fmt.Errorf("creating output file: %w", createErr)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing output file: %w", cerr)
			}
		}()
		w = file
	}

	switch {
	case jsonOut:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	case out.Mean:
		err = res.Table.WriteMeanCSV(w)
	default:
		err = res.Table.WriteCSV(w)
	}
	if err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if w != stdout {
		slog.Info("result written", "path", out.Path)
	}
	return nil
}

func printSummary(w io.Writer, m engine.Model, res *results.Result) {
	t := res.Table
	fmt.Fprintf(w, "%s: %d replicates x %d generations, seed %d (%s streams)\n",
		res.Model, t.Replicates(), t.Generations(), res.Seed, res.Streams)

	s := res.Summary
	switch v := m.(type) {
	case engine.RandomWalk:
		fmt.Fprintf(w, "effective step-up probability: %.4f\n", v.EffectiveProbability())
		fmt.Fprintf(w, "mean position: %.2f -> %.2f\n", s.InitialMean, s.FinalMean)
	case engine.Directional:
		fmt.Fprintf(w, "mean trait value: %.4f -> %.4f (total change %+.4f)\n", s.InitialMean, s.FinalMean, s.TotalChange)
	default:
		fmt.Fprintf(w, "mean frequency of A: %.4f -> %.4f\n", s.InitialMean, s.FinalMean)
		fixed := make([]string, len(s.Fixation))
		for r, g := range s.Fixation {
			if g < 0 {
				fixed[r] = "-"
			} else {
				fixed[r] = fmt.Sprint(g)
			}
		}
		fmt.Fprintf(w, "fixation generation per run: %s\n", strings.Join(fixed, " "))
	}
}
