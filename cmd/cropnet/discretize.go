package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cropnet/internal/discretize"
)

// #region discretize
func newDiscretizeCmd() *cobra.Command {
	var (
		buckets   int
		exclude   []string
		tablePath string
		outPath   string
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "discretize <data.csv>",
		Short: "Fit quantile thresholds and bucket every numeric column",
		Long: `Fit k-quantile thresholds per column, bucket every value, and store the
threshold table as the new active version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("buckets") {
				buckets = cfg.Buckets
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			frame, err := discretize.ReadFrameCSV(f, exclude...)
			f.Close()
			if err != nil {
				return err
			}

			bucketed, table, err := discretize.DiscretizeColumns(frame.Numeric, buckets)
			if err != nil {
				return err
			}
			logger.Debug("discretized",
				zap.Int("columns", len(table)),
				zap.Int("buckets", buckets),
			)

			if outPath != "" {
				if err := writeBucketsCSV(outPath, exclude, frame, bucketed); err != nil {
					return err
				}
			}

			if !noSave {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				rec, err := s.SaveThresholds(table, buckets, args[0])
				if err != nil {
					return err
				}
				logger.Info("threshold table saved", zap.String("version", rec.VersionID))
			}

			if tablePath == "" {
				return discretize.WriteTable(cmd.OutOrStdout(), table)
			}
			out, err := os.Create(tablePath)
			if err != nil {
				return err
			}
			defer out.Close()
			return discretize.WriteTable(out, table)
		},
	}

	cmd.Flags().IntVarP(&buckets, "buckets", "k", 3, "number of quantile buckets (default from config)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "columns to copy through unbucketed (e.g. fips, year)")
	cmd.Flags().StringVar(&tablePath, "table", "", "write the threshold table here instead of stdout")
	cmd.Flags().StringVar(&outPath, "out", "", "write the bucketed data as CSV")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the table in the database")
	return cmd
}

// writeBucketsCSV writes the excluded columns first, in flag order and
// unchanged, followed by the bucketed columns sorted by name.
func writeBucketsCSV(path string, exclude []string, frame discretize.Frame, bucketed map[string][]int) error {
	var keys []string
	for _, name := range exclude {
		if _, ok := frame.Skipped[name]; ok {
			keys = append(keys, name)
		}
	}
	names := make([]string, 0, len(bucketed))
	for name := range bucketed {
		names = append(names, name)
	}
	sort.Strings(names)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := gocsv.DefaultCSVWriter(f)
	if err := w.Write(append(append([]string{}, keys...), names...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(keys)+len(names))
	for i := 0; i < frame.Rows; i++ {
		for j, name := range keys {
			record[j] = frame.Skipped[name][i]
		}
		for j, name := range names {
			record[len(keys)+j] = strconv.Itoa(bucketed[name][i])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	return w.Error()
}

// #endregion discretize
