package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// #region method
// Method selects how the engine is queried.
type Method string

const (
	MethodQuery      Method = "query"
	MethodDoCalculus Method = "do_calculus"
)

// #endregion method

// #region evidence
// Evidence is one set of observed node states, variable -> bucket.
type Evidence map[string]int

// Intervention forces a variable into a bucket. It travels as a
// two-element JSON array, [variable, bucket].
type Intervention struct {
	Variable string
	Bucket   int
}

func (iv Intervention) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{iv.Variable, iv.Bucket})
}

func (iv *Intervention) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("intervention: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("intervention: want [variable, bucket], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &iv.Variable); err != nil {
		return fmt.Errorf("intervention variable: %w", err)
	}
	if err := json.Unmarshal(pair[1], &iv.Bucket); err != nil {
		return fmt.Errorf("intervention bucket: %w", err)
	}
	return nil
}

// #endregion evidence

// #region marginals
// Mass is the probability of one bucket.
type Mass struct {
	Bucket string
	P      float64
}

// Marginals is a posterior distribution over a variable's buckets. Order is
// significant: it follows the engine's output and breaks argmax ties.
type Marginals []Mass

// MarginalsFromMap orders buckets by index.
func MarginalsFromMap(m map[int]float64) Marginals {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make(Marginals, len(keys))
	for i, k := range keys {
		out[i] = Mass{Bucket: strconv.Itoa(k), P: m[k]}
	}
	return out
}

// ArgMax returns the bucket with the highest mass. On ties the first one
// encountered wins.
func (m Marginals) ArgMax() (int, error) {
	if len(m) == 0 {
		return 0, ErrEmptyMarginals
	}
	best := 0
	for i := 1; i < len(m); i++ {
		if m[i].P > m[best].P {
			best = i
		}
	}
	idx, err := strconv.Atoi(m[best].Bucket)
	if err != nil {
		return 0, fmt.Errorf("bucket label %q: %w", m[best].Bucket, err)
	}
	return idx, nil
}

// Validate checks every mass lies in [0,1] and the total is 1 within tol.
func (m Marginals) Validate(tol float64) error {
	if len(m) == 0 {
		return ErrEmptyMarginals
	}
	var sum float64
	for _, x := range m {
		if math.IsNaN(x.P) || x.P < -tol || x.P > 1+tol {
			return fmt.Errorf("%w: bucket %s has mass %g", ErrInvalidMarginals, x.Bucket, x.P)
		}
		sum += x.P
	}
	if math.Abs(sum-1) > tol {
		return fmt.Errorf("%w: total mass %g", ErrInvalidMarginals, sum)
	}
	return nil
}

func (m Marginals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, x := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(x.Bucket)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(x.P)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order of the source object.
func (m *Marginals) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("marginals: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("marginals: expected object")
	}

	out := Marginals{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("marginals key: %w", err)
		}
		key, _ := tok.(string)
		var p float64
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("marginals %q: %w", key, err)
		}
		out = append(out, Mass{Bucket: key, P: p})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("marginals: %w", err)
	}
	*m = out
	return nil
}

// #endregion marginals

// #region results
// QueryResult is the engine output for one observation set.
type QueryResult struct {
	Method      Method    `json:"method"`
	Target      string    `json:"target"`
	Observation Evidence  `json:"observation"`
	Marginals   Marginals `json:"marginals"`
}

// DoCalculusResult holds the target's marginals before and after the
// interventions were applied.
type DoCalculusResult struct {
	Method        Method         `json:"method"`
	Target        string         `json:"target"`
	Query         Evidence       `json:"query"`
	Interventions []Intervention `json:"interventions"`
	Before        Marginals      `json:"marginals-before"`
	After         Marginals      `json:"marginals-after"`
}

// #endregion results
