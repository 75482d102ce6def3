package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/cropnet/internal/discretize"
	"github.com/danielpatrickdp/cropnet/internal/store"
)

// #region inspect
func newInspectCmd() *cobra.Command {
	var (
		last       int
		versionID  string
		activate   bool
		inferences bool
		sets       bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List stored threshold versions, constraint sets or inference log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			w := cmd.OutOrStdout()
			switch {
			case versionID != "" && activate:
				if err := s.Activate(versionID); err != nil {
					return err
				}
				fmt.Fprintf(w, "active threshold table: %s\n", versionID)
				return nil
			case versionID != "":
				return runDetailMode(w, s, versionID, jsonOut)
			case inferences:
				return runInferenceMode(w, s, last, jsonOut)
			case sets:
				return runConstraintMode(w, s, last, jsonOut)
			default:
				return runListMode(w, s, last, jsonOut)
			}
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "show N most recent entries")
	cmd.Flags().StringVar(&versionID, "version", "", "show single threshold version detail")
	cmd.Flags().BoolVar(&activate, "activate", false, "with --version, make that version active (rollback)")
	cmd.Flags().BoolVar(&inferences, "inferences", false, "list the inference log")
	cmd.Flags().BoolVar(&sets, "constraints", false, "list cached constraint sets")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

// #endregion inspect

// #region list-mode
type listRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Active    bool   `json:"active"`
	Variables int    `json:"variables"`
	Buckets   int    `json:"buckets"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runListMode(w io.Writer, s *store.Store, last int, jsonOut bool) error {
	versions, err := s.ListThresholds(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(w, "no threshold versions found")
		return nil
	}

	var activeID string
	if active, err := s.GetActiveThresholds(); err == nil {
		activeID = active.VersionID
	}

	rows := make([]listRow, len(versions))
	for i, v := range versions {
		rows[i] = listRow{
			VersionID: v.VersionID,
			ParentID:  v.ParentID,
			Active:    v.VersionID == activeID,
			Variables: len(v.Table),
			Buckets:   v.Buckets,
			Source:    v.Source,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-1s %-8s  %-8s  %9s  %7s  %-20s  %s\n",
		"", "Version", "Parent", "Variables", "Buckets", "Time", "Source")
	fmt.Fprintf(w, "%-1s %-8s+-%-8s+-%9s+-%7s+-%-20s+-%s\n",
		"", "--------", "--------", "---------", "-------", "--------------------", "------")
	for _, r := range rows {
		mark := ""
		if r.Active {
			mark = "*"
		}
		parent := shortID(r.ParentID)
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(w, "%-1s %-8s  %-8s  %9d  %7d  %-20s  %s\n",
			mark, shortID(r.VersionID), parent, r.Variables, r.Buckets, r.CreatedAt, r.Source)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode
type detailOutput struct {
	VersionID string           `json:"version_id"`
	ParentID  string           `json:"parent_id"`
	CreatedAt string           `json:"created_at"`
	Buckets   int              `json:"buckets"`
	Source    string           `json:"source"`
	Table     discretize.Table `json:"thresholds"`
}

func runDetailMode(w io.Writer, s *store.Store, versionID string, jsonOut bool) error {
	v, err := s.GetThresholds(versionID)
	if err != nil {
		return err
	}

	out := detailOutput{
		VersionID: v.VersionID,
		ParentID:  v.ParentID,
		CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Buckets:   v.Buckets,
		Source:    v.Source,
		Table:     v.Table,
	}
	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Version:    %s\n", out.VersionID)
	fmt.Fprintf(w, "Parent:     %s\n", out.ParentID)
	fmt.Fprintf(w, "Created:    %s\n", out.CreatedAt)
	fmt.Fprintf(w, "Buckets:    %d\n", out.Buckets)
	fmt.Fprintf(w, "Source:     %s\n", out.Source)
	fmt.Fprintf(w, "\nThresholds:\n")
	for _, name := range v.Table.Names() {
		fmt.Fprintf(w, "  %-24s %v\n", name, v.Table[name])
	}
	return nil
}

// #endregion detail-mode

// #region inference-mode
func runInferenceMode(w io.Writer, s *store.Store, last int, jsonOut bool) error {
	entries, err := s.ListInferences(last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no inferences logged")
		return nil
	}

	fmt.Fprintf(w, "%-8s  %-11s  %-16s  %-8s  %-20s  %s\n",
		"Request", "Method", "Target", "Table", "Time", "Error")
	for _, e := range entries {
		table := shortID(e.ThresholdVersion)
		if table == "" {
			table = "-"
		}
		fmt.Fprintf(w, "%-8s  %-11s  %-16s  %-8s  %-20s  %s\n",
			shortID(e.RequestID), e.Method, e.Target, table,
			e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.Error)
	}
	return nil
}

// #endregion inference-mode

// #region constraint-mode
func runConstraintMode(w io.Writer, s *store.Store, last int, jsonOut bool) error {
	records, err := s.ListConstraints(last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no constraint sets cached")
		return nil
	}

	fmt.Fprintf(w, "%-12s  %-16s  %9s  %10s  %s\n", "Mapping", "Markers", "Variables", "Tabu edges", "Time")
	for _, r := range records {
		fmt.Fprintf(w, "%-12s  %-16s  %9d  %10d  %s\n",
			r.MappingHash[:min(12, len(r.MappingHash))], r.Markers, r.Variables, r.Edges,
			r.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion constraint-mode
