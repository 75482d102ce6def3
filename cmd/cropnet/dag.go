package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cropnet/internal/constraints"
	"github.com/danielpatrickdp/cropnet/internal/dag"
)

// #region check-dag
type dagReport struct {
	Edges      int        `json:"edges"`
	Violations []dag.Edge `json:"violations"`
	Cycle      []string   `json:"cycle,omitempty"`
}

func newCheckDAGCmd() *cobra.Command {
	var (
		stagesPath string
		edgesPath  string
		markers    []string
	)

	cmd := &cobra.Command{
		Use:   "check-dag",
		Short: "Check a learned structure against stage constraints and for cycles",
		Long: `Check the stored learned structure against the tabu constraints derived
from a stage mapping. With --edges the edge list is imported first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readStages(stagesPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("markers") {
				markers = cfg.Markers
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			g, err := dag.NewStructureStore(s.DB())
			if err != nil {
				return err
			}
			if edgesPath != "" {
				f, err := os.Open(edgesPath)
				if err != nil {
					return err
				}
				edges, err := dag.ReadEdgesCSV(f)
				f.Close()
				if err != nil {
					return err
				}
				if err := g.Import(edges); err != nil {
					return err
				}
				logger.Info("edges imported", zap.Int("count", len(edges)))
			}

			set, _, err := s.ConstraintsFor(m, constraints.NewGenerator(markers...))
			if err != nil {
				return err
			}
			all, err := g.Edges()
			if err != nil {
				return err
			}
			bad, err := g.Violations(set)
			if err != nil {
				return err
			}
			cycle, err := g.Cycle()
			if err != nil {
				return err
			}

			report := dagReport{Edges: len(all), Violations: bad, Cycle: cycle}
			if report.Violations == nil {
				report.Violations = []dag.Edge{}
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(bad) > 0 || len(cycle) > 0 {
				return fmt.Errorf("structure invalid: %d forbidden edges, cycle [%s]",
					len(bad), strings.Join(cycle, " -> "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stagesPath, "stages", "", "stage mapping (.csv or .yaml)")
	cmd.Flags().StringVar(&edgesPath, "edges", "", "import a from,to[,weight] edge list first")
	cmd.Flags().StringSliceVar(&markers, "markers", nil, "atmospheric name markers (default from config)")
	_ = cmd.MarkFlagRequired("stages")
	return cmd
}

// #endregion check-dag
