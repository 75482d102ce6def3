package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cropnet/internal/constraints"
)

// #region constraints
func newConstraintsCmd() *cobra.Command {
	var (
		markers []string
		allowed bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "constraints <stages.csv|stages.yaml>",
		Short: "Derive tabu edges and tabu children from a growth-stage mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readStages(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("markers") {
				markers = cfg.Markers
			}
			gen := constraints.NewGenerator(markers...)

			var set constraints.Set
			if noCache {
				set = gen.Generate(m)
			} else {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				var cached bool
				set, cached, err = s.ConstraintsFor(m, gen)
				if err != nil {
					return err
				}
				logger.Debug("constraints resolved",
					zap.String("mapping", m.Hash()),
					zap.Bool("cached", cached),
				)
			}

			logger.Info("constraints",
				zap.Int("variables", len(set.Variables)),
				zap.Int("tabu_edges", len(set.Edges)),
				zap.Int("tabu_child", len(set.TabuChild)),
			)
			if allowed {
				return printJSON(cmd.OutOrStdout(), set.Allowed())
			}
			return printJSON(cmd.OutOrStdout(), set)
		},
	}

	cmd.Flags().StringSliceVar(&markers, "markers", nil, "atmospheric name markers (default from config)")
	cmd.Flags().BoolVar(&allowed, "allowed", false, "print the permitted edges instead")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "generate without reading or writing the database")
	return cmd
}

// #endregion constraints
