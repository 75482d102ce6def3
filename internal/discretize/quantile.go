// Package discretize converts continuous measurements into ordinal buckets
// using empirical quantile split points.
package discretize

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrBucketCount is returned when fewer than two buckets are requested.
	ErrBucketCount = errors.New("bucket count must be at least 2")
	// ErrNoData is returned for an empty input column.
	ErrNoData = errors.New("no data")
	// ErrDegenerateSplit is returned when ties collapse two cut points onto
	// the same value.
	ErrDegenerateSplit = errors.New("degenerate quantile split")
	// ErrNonFinite is returned for NaN or infinite input values.
	ErrNonFinite = errors.New("non-finite value")
)

// #region result
// Result is the output of discretizing one column.
type Result struct {
	Buckets    []int
	Thresholds []float64
}

// #endregion result

// #region quantiles
// Quantiles returns the k-1 cut points at levels i/k over values.
// Each cut point interpolates linearly between the two closest ranks
// (position q*(n-1) in the sorted data). The input slice is not modified.
func Quantiles(values []float64, k int) ([]float64, error) {
	if k < 2 {
		return nil, ErrBucketCount
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i, v := range sorted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %g at index %d", ErrNonFinite, v, i)
		}
	}
	sort.Float64s(sorted)

	cuts := make([]float64, k-1)
	last := float64(len(sorted) - 1)
	for i := 1; i < k; i++ {
		pos := float64(i) / float64(k) * last
		lo := math.Floor(pos)
		hi := math.Ceil(pos)
		frac := pos - lo
		a, b := sorted[int(lo)], sorted[int(hi)]
		cuts[i-1] = a + (b-a)*frac
	}
	return cuts, nil
}

// #endregion quantiles

// #region digitize
// Digitize returns the bucket for v: the smallest bucket whose upper
// threshold exceeds v. Values at or above the last threshold land in the
// final bucket, len(thresholds).
func Digitize(v float64, thresholds []float64) int {
	return sort.Search(len(thresholds), func(i int) bool {
		return thresholds[i] > v
	})
}

// #endregion digitize

// #region discretize
// Discretize splits values into k quantile buckets.
func Discretize(values []float64, k int) (Result, error) {
	cuts, err := Quantiles(values, k)
	if err != nil {
		return Result{}, err
	}

	buckets := make([]int, len(values))
	for i, v := range values {
		buckets[i] = Digitize(v, cuts)
	}
	return Result{Buckets: buckets, Thresholds: cuts}, nil
}

// DiscretizeColumns discretizes every column not listed in exclude.
// Excluded columns are left out of both outputs. A column whose cut points
// are not strictly increasing fails the whole call, since its thresholds
// could not be inverted later.
func DiscretizeColumns(columns map[string][]float64, k int, exclude ...string) (map[string][]int, Table, error) {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		if !skip[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	buckets := make(map[string][]int, len(names))
	table := make(Table, len(names))
	for _, name := range names {
		res, err := Discretize(columns[name], k)
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", name, err)
		}
		if err := validateVector(res.Thresholds); err != nil {
			return nil, nil, fmt.Errorf("column %s: %w: %v", name, ErrDegenerateSplit, res.Thresholds)
		}
		buckets[name] = res.Buckets
		table[name] = res.Thresholds
	}
	return buckets, table, nil
}

// #endregion discretize
