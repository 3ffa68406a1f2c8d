// Command cultsim runs stochastic cultural-transmission simulations and
// writes their generation-by-replicate tables as CSV.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/cultsim/internal/config"
	"github.com/talgya/cultsim/internal/logging"
)

var version = "0.1.0-dev"

// app carries state resolved once per invocation by the root command.
type app struct {
	cfg *config.Config
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cultsim",
		Short: "Cultural evolution simulations",
		Long: `cultsim simulates how cultural traits change across generations.

Each model runs a number of independent replicates for a fixed number of
generations and records one value per generation and replicate: the
frequency of trait A for the transmission models, or the trait value for
the trend models. The same seed always reproduces the same table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.cultsim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, trace")
	rootCmd.PersistentFlags().Bool("json", false, "Output the full result as JSON instead of CSV")

	rootCmd.AddCommand(
		newVersionCmd(),
		newUnbiasedCmd(a),
		newIndirectBiasCmd(a),
		newDirectionalCmd(a),
		newRandomWalkCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

// setup loads the config, applies the global flags and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()))
	a.cfg = cfg
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading: version must work with a broken config.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cultsim version %s\n", version)
			}
		},
	}
}
