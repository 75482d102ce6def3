// Package codec translates between real-valued node readings and the bucket
// indices the Bayesian network works in.
package codec

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/cropnet/internal/discretize"
)

// #region errors
var (
	// ErrUnknownVariable is returned for a variable missing from the table.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrBucketOutOfRange is returned when a bucket index exceeds the
	// variable's bucket count.
	ErrBucketOutOfRange = errors.New("bucket out of range")
	// ErrInvalidReading is returned for a NaN reading, which has no bucket.
	ErrInvalidReading = errors.New("invalid reading")
)

// UnknownVariableError names the missing variable and the valid choices.
type UnknownVariableError struct {
	Name  string
	Known []string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q; valid names: %s", e.Name, strings.Join(e.Known, ", "))
}

func (e *UnknownVariableError) Unwrap() error { return ErrUnknownVariable }

// BucketRangeError reports a decode index outside 0..Max.
type BucketRangeError struct {
	Name   string
	Bucket int
	Max    int
}

func (e *BucketRangeError) Error() string {
	return fmt.Sprintf("bucket %d for %q outside 0..%d", e.Bucket, e.Name, e.Max)
}

func (e *BucketRangeError) Unwrap() error { return ErrBucketOutOfRange }

// #endregion errors

// #region types
// Reading is a real-valued observation of one variable.
type Reading struct {
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
}

// Bucket is a discretized observation.
type Bucket struct {
	Variable string `json:"variable"`
	Index    int    `json:"bucket"`
}

// Range is a decoded bucket rendered as a human-readable interval.
type Range struct {
	Variable string `json:"variable"`
	Label    string `json:"range"`
}

// #endregion types

// #region encode
// Encode maps each reading to the leftmost insertion point in its
// variable's thresholds, so a value equal to a threshold takes the lower
// bucket. No output is produced if any variable is unknown.
func Encode(table discretize.Table, readings []Reading) ([]Bucket, error) {
	out := make([]Bucket, 0, len(readings))
	for _, r := range readings {
		th, ok := table[r.Variable]
		if !ok {
			return nil, &UnknownVariableError{Name: r.Variable, Known: table.Names()}
		}
		if math.IsNaN(r.Value) {
			return nil, fmt.Errorf("%w: %s is NaN", ErrInvalidReading, r.Variable)
		}
		out = append(out, Bucket{Variable: r.Variable, Index: sort.SearchFloat64s(th, r.Value)})
	}
	return out, nil
}

// #endregion encode

// #region decode
// Decode renders each bucket as the interval it covers. Decoding stops at
// the first invalid entry.
func Decode(table discretize.Table, buckets []Bucket) ([]Range, error) {
	out := make([]Range, 0, len(buckets))
	for _, b := range buckets {
		th, ok := table[b.Variable]
		if !ok {
			return nil, &UnknownVariableError{Name: b.Variable, Known: table.Names()}
		}
		label, err := Label(th, b.Index)
		if err != nil {
			var rangeErr *BucketRangeError
			if errors.As(err, &rangeErr) {
				rangeErr.Name = b.Variable
			}
			return nil, err
		}
		out = append(out, Range{Variable: b.Variable, Label: label})
	}
	return out, nil
}

// Label formats bucket i of thresholds t:
//
//	0        -> "<t[0]"
//	len(t)   -> ">t[len(t)-1]"
//	other i  -> ">=t[i-1] | <t[i]"
func Label(t []float64, i int) (string, error) {
	n := len(t)
	if n == 0 || i < 0 || i > n {
		return "", &BucketRangeError{Bucket: i, Max: n}
	}
	switch i {
	case 0:
		return fmt.Sprintf("<%.2f", t[0]), nil
	case n:
		return fmt.Sprintf(">%.2f", t[n-1]), nil
	default:
		return fmt.Sprintf(">=%.2f | <%.2f", t[i-1], t[i]), nil
	}
}

// #endregion decode
