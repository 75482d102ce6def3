package discretize

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// Frame is a CSV table split into numeric columns and skipped columns,
// which keep their raw text so identifiers like FIPS codes survive intact.
type Frame struct {
	Numeric map[string][]float64
	Skipped map[string][]string
	Rows    int
}

// ReadColumnsCSV loads a header-first CSV of numeric columns, typically the
// per-county zonal statistics table. Columns listed in skip (such as a FIPS
// identifier) are left out.
func ReadColumnsCSV(r io.Reader, skip ...string) (map[string][]float64, error) {
	frame, err := ReadFrameCSV(r, skip...)
	if err != nil {
		return nil, err
	}
	return frame.Numeric, nil
}

// ReadFrameCSV is ReadColumnsCSV that also returns the skipped columns
// verbatim, row-aligned with the numeric ones.
func ReadFrameCSV(r io.Reader, skip ...string) (Frame, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return Frame{}, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return Frame{}, ErrNoData
	}

	ignored := make(map[string]bool, len(skip))
	for _, name := range skip {
		ignored[name] = true
	}

	frame := Frame{
		Numeric: make(map[string][]float64),
		Skipped: make(map[string][]string),
		Rows:    len(rows),
	}
	for i, row := range rows {
		for name, raw := range row {
			if ignored[name] {
				frame.Skipped[name] = append(frame.Skipped[name], raw)
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				// row numbers are 1-based after the header
				return Frame{}, fmt.Errorf("row %d column %s: %w", i+1, name, err)
			}
			frame.Numeric[name] = append(frame.Numeric[name], v)
		}
	}
	return frame, nil
}
