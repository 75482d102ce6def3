package discretize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// ErrInvalidThresholds is returned when a threshold vector is empty,
// contains NaN, or is not strictly increasing.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// #region table
// Table maps a variable name to its ascending threshold vector.
// A vector of length n partitions the domain into n+1 buckets.
type Table map[string][]float64

// Validate checks every vector is non-empty and strictly increasing.
func (t Table) Validate() error {
	for _, name := range t.Names() {
		if err := validateVector(t[name]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Names returns the variable names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Buckets returns the bucket count for a variable, or 0 if it is unknown.
func (t Table) Buckets(name string) int {
	v, ok := t[name]
	if !ok {
		return 0
	}
	return len(v) + 1
}

// #endregion table

// #region io
// ReadTable decodes a JSON threshold table and validates it.
func ReadTable(r io.Reader) (Table, error) {
	var t Table
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteTable encodes the table as indented JSON.
func WriteTable(w io.Writer, t Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	return nil
}

// #endregion io

func validateVector(v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidThresholds)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %g at %d", ErrInvalidThresholds, x, i)
		}
		if i > 0 && x <= v[i-1] {
			return fmt.Errorf("%w: %g at %d does not exceed %g", ErrInvalidThresholds, x, i, v[i-1])
		}
	}
	return nil
}
