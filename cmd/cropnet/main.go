// Package main provides the cropnet CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cropnet/internal/config"
	"github.com/danielpatrickdp/cropnet/internal/logging"
	"github.com/danielpatrickdp/cropnet/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	cfg        config.Config
	logger     = zap.NewNop()
	configPath string
	dbFlag     string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cropnet",
		Short: "Discretize field data, generate stage constraints and query a crop-yield Bayesian network",
		Long: `cropnet prepares crop and weather data for a Bayesian-network yield model.

It fits quantile thresholds, derives tabu-edge constraints from growth
stages, encodes and decodes readings, and runs marginal queries and
do-interventions against the inference engine.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if dbFlag != "" {
				cfg.DBPath = dbFlag
			}
			logger, err = logging.NewLogger(verbose)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cropnet.yaml", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cropnet v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(
		newDiscretizeCmd(),
		newConstraintsCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newFormatCmd(),
		newQueryCmd(),
		newDoCmd(),
		newCheckDAGCmd(),
		newInspectCmd(),
		newReplayCmd(),
	)
	return rootCmd
}

func openStore() (*store.Store, error) {
	s, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", cfg.DBPath, err)
	}
	return s, nil
}
