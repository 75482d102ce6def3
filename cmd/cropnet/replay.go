package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cropnet/internal/replay"
)

// #region replay
func newReplayCmd() *cobra.Command {
	var (
		last        int
		fixturePath string
		exportPath  string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-format logged engine output and report drift",
		Long: `Re-run recorded engine output through the formatter and compare the
most-likely buckets with what was logged. With --fixture the cases come
from a JSON fixture instead of the inference log; with --export the logged
cases are written out as a fixture.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cases []replay.Case
			if fixturePath != "" {
				f, err := replay.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				cases = f.Cases
			} else {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				entries, err := s.ListInferences(last)
				if err != nil {
					return err
				}
				// oldest first
				for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
					entries[i], entries[j] = entries[j], entries[i]
				}
				cases, err = replay.CasesFromLog(entries)
				if err != nil {
					return err
				}
			}

			if exportPath != "" {
				f := replay.Fixture{
					Description: fmt.Sprintf("exported from %s", cfg.DBPath),
					Cases:       cases,
				}
				if err := replay.WriteFixture(exportPath, f); err != nil {
					return err
				}
				logger.Info("fixture exported", zap.String("path", exportPath), zap.Int("cases", len(cases)))
			}

			results := replay.Replay(cases)
			w := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(w, "%-8s  %-8s  %s\n", shortID(r.ID), r.Action, r.Reason)
			}
			sum := replay.Summarize(results)
			fmt.Fprintf(w, "\n%d cases: %d match, %d mismatch, %d skipped, %d error\n",
				sum.Total, sum.Matches, sum.Mismatches, sum.Skipped, sum.Errors)
			if !sum.OK() {
				return fmt.Errorf("replay drift: %d mismatches, %d errors", sum.Mismatches, sum.Errors)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&last, "last", 50, "replay the N most recent log entries")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "replay cases from a JSON fixture")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the cases as a fixture")
	return cmd
}

// #endregion replay
