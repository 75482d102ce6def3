// Package inference dispatches typed requests to the Bayesian-network
// engine and reduces the marginals it returns to most-likely buckets.
package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/cropnet/internal/codec"
)

// #region errors
var (
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrEmptyMarginals    = errors.New("empty marginals")
	ErrInvalidMarginals  = errors.New("invalid marginals")
	ErrEmptyOutput       = errors.New("empty inference output")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrTargetMissing     = errors.New("target missing from engine output")
)

// UnsupportedMethodError names the method that was not recognized.
type UnsupportedMethodError struct {
	Method Method
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method %q (want %q or %q)", e.Method, MethodQuery, MethodDoCalculus)
}

func (e *UnsupportedMethodError) Unwrap() error { return ErrUnsupportedMethod }

// #endregion errors

// #region formatted
// QueryDef records what was asked so the answer can be read back later.
type QueryDef struct {
	Target        string         `json:"target"`
	Query         Evidence       `json:"query"`
	Interventions []Intervention `json:"interventions,omitempty"`
}

// Formatted is the reduced inference output: one most-likely bucket per
// result (two for do-calculus: before, then after).
type Formatted struct {
	Method  Method         `json:"method"`
	Buckets []codec.Bucket `json:"decoded"`
	Queries []QueryDef     `json:"queries"`
}

// #endregion formatted

// #region format
// FormatQuery reduces a batch of query results.
func FormatQuery(results []QueryResult) (Formatted, error) {
	if len(results) == 0 {
		return Formatted{}, ErrEmptyOutput
	}
	out := Formatted{Method: MethodQuery}
	for i, r := range results {
		b, err := r.Marginals.ArgMax()
		if err != nil {
			return Formatted{}, fmt.Errorf("result %d (%s): %w", i, r.Target, err)
		}
		out.Buckets = append(out.Buckets, codec.Bucket{Variable: r.Target, Index: b})
		out.Queries = append(out.Queries, QueryDef{Target: r.Target, Query: r.Observation})
	}
	return out, nil
}

// FormatDoCalculus reduces a before/after intervention result.
func FormatDoCalculus(r DoCalculusResult) (Formatted, error) {
	before, err := r.Before.ArgMax()
	if err != nil {
		return Formatted{}, fmt.Errorf("marginals before: %w", err)
	}
	after, err := r.After.ArgMax()
	if err != nil {
		return Formatted{}, fmt.Errorf("marginals after: %w", err)
	}
	return Formatted{
		Method: MethodDoCalculus,
		Buckets: []codec.Bucket{
			{Variable: r.Target, Index: before},
			{Variable: r.Target, Index: after},
		},
		Queries: []QueryDef{{
			Target:        r.Target,
			Query:         r.Query,
			Interventions: r.Interventions,
		}},
	}, nil
}

// FormatOutput reduces raw engine JSON: an array of query results, a single
// query result, or a do-calculus object.
func FormatOutput(raw []byte) (Formatted, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Formatted{}, ErrEmptyOutput
	}

	var head struct {
		Method Method `json:"method"`
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Formatted{}, fmt.Errorf("decode output: %w", err)
		}
		if len(items) == 0 {
			return Formatted{}, ErrEmptyOutput
		}
		if err := json.Unmarshal(items[0], &head); err != nil {
			return Formatted{}, fmt.Errorf("decode output: %w", err)
		}
		if head.Method != MethodQuery {
			return Formatted{}, &UnsupportedMethodError{Method: head.Method}
		}
		var results []QueryResult
		if err := json.Unmarshal(raw, &results); err != nil {
			return Formatted{}, fmt.Errorf("decode query results: %w", err)
		}
		return FormatQuery(results)
	}

	if err := json.Unmarshal(raw, &head); err != nil {
		return Formatted{}, fmt.Errorf("decode output: %w", err)
	}
	switch head.Method {
	case MethodQuery:
		var r QueryResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return Formatted{}, fmt.Errorf("decode query result: %w", err)
		}
		return FormatQuery([]QueryResult{r})
	case MethodDoCalculus:
		var r DoCalculusResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return Formatted{}, fmt.Errorf("decode do-calculus result: %w", err)
		}
		return FormatDoCalculus(r)
	default:
		return Formatted{}, &UnsupportedMethodError{Method: head.Method}
	}
}

// #endregion format
