// Package replay re-runs logged engine output through the formatter and
// reports drift against what was recorded at query time.
package replay

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/cropnet/internal/codec"
	"github.com/danielpatrickdp/cropnet/internal/inference"
	"github.com/danielpatrickdp/cropnet/internal/logging"
)

// #region types
// Action values.
const (
	ActionMatch    = "match"
	ActionMismatch = "mismatch"
	ActionSkipped  = "skipped"
	ActionError    = "error"
)

// Case is one recorded engine output with the buckets it produced.
type Case struct {
	ID       string          `json:"id"`
	Output   json.RawMessage `json:"output"`
	Expected []codec.Bucket  `json:"expected"`
}

// Result captures the outcome of replaying one case.
type Result struct {
	ID       string
	Action   string
	Reason   string
	Expected []codec.Bucket
	Replayed []codec.Bucket
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total      int
	Matches    int
	Mismatches int
	Skipped    int
	Errors     int
}

// OK reports whether every replayed case matched or was skipped.
func (s Summary) OK() bool {
	return s.Mismatches == 0 && s.Errors == 0
}

// #endregion types

// #region replay
// Replay formats each case's output again and compares the buckets.
func Replay(cases []Case) []Result {
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		r := Result{ID: c.ID, Expected: c.Expected}
		if len(c.Output) == 0 {
			r.Action = ActionSkipped
			r.Reason = "no engine output recorded"
			results = append(results, r)
			continue
		}

		f, err := inference.FormatOutput(c.Output)
		if err != nil {
			r.Action = ActionError
			r.Reason = err.Error()
			results = append(results, r)
			continue
		}
		r.Replayed = f.Buckets

		if diff := cmp.Diff(c.Expected, f.Buckets); diff != "" {
			r.Action = ActionMismatch
			r.Reason = fmt.Sprintf("buckets differ (-logged +replayed):\n%s", diff)
		} else {
			r.Action = ActionMatch
		}
		results = append(results, r)
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionMatch:
			s.Matches++
		case ActionMismatch:
			s.Mismatches++
		case ActionSkipped:
			s.Skipped++
		case ActionError:
			s.Errors++
		}
	}
	return s
}

// #endregion replay

// #region from-log
// loggedOutcome is the part of inference_log.decoded_json replay reads.
type loggedOutcome struct {
	Result inference.Formatted `json:"result"`
}

// CasesFromLog converts inference log entries into replay cases. Entries that
// failed at query time carry no output and replay as skipped.
func CasesFromLog(entries []logging.InferenceEntry) ([]Case, error) {
	cases := make([]Case, 0, len(entries))
	for _, e := range entries {
		c := Case{ID: e.RequestID}
		if e.ResponseJSON != "" && e.Error == "" {
			var out loggedOutcome
			if err := json.Unmarshal([]byte(e.DecodedJSON), &out); err != nil {
				return nil, fmt.Errorf("entry %s: decoded json: %w", e.RequestID, err)
			}
			c.Output = json.RawMessage(e.ResponseJSON)
			c.Expected = out.Result.Buckets
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// #endregion from-log
