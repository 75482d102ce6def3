package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/cropnet/internal/codec"
	"github.com/danielpatrickdp/cropnet/internal/discretize"
	"github.com/danielpatrickdp/cropnet/internal/inference"
)

// #region table
// loadTable reads the threshold table from path, or the active stored
// version when path is empty.
func loadTable(path string) (discretize.Table, string, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		t, err := discretize.ReadTable(f)
		return t, "", err
	}

	s, err := openStore()
	if err != nil {
		return nil, "", err
	}
	defer s.Close()
	rec, err := s.GetActiveThresholds()
	if err != nil {
		return nil, "", fmt.Errorf("load thresholds: %w", err)
	}
	return rec.Table, rec.VersionID, nil
}

// #endregion table

// #region encode-decode
func newEncodeCmd() *cobra.Command {
	var tablePath string
	cmd := &cobra.Command{
		Use:   "encode <variable=value>...",
		Short: "Map real-valued readings to bucket indices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readings, err := parseReadings(args)
			if err != nil {
				return err
			}
			table, _, err := loadTable(tablePath)
			if err != nil {
				return err
			}
			buckets, err := codec.Encode(table, readings)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), buckets)
		},
	}
	cmd.Flags().StringVar(&tablePath, "table", "", "threshold table JSON (default: active stored version)")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var tablePath string
	cmd := &cobra.Command{
		Use:   "decode <variable=bucket>...",
		Short: "Render bucket indices as value ranges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buckets, err := parseBuckets(args)
			if err != nil {
				return err
			}
			table, _, err := loadTable(tablePath)
			if err != nil {
				return err
			}
			ranges, err := codec.Decode(table, buckets)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ranges)
		},
	}
	cmd.Flags().StringVar(&tablePath, "table", "", "threshold table JSON (default: active stored version)")
	return cmd
}

// #endregion encode-decode

// #region format
func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <engine-output.json>",
		Short: "Reduce raw engine marginals to the most likely bucket per target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			f, err := inference.FormatOutput(raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), f)
		},
	}
}

// #endregion format
